package event

// KeyClass is the privacy-preserving category of a key press.
type KeyClass string

const (
	KeyAlphanumeric KeyClass = "alphanumeric"
	KeyOther        KeyClass = "other"

	// Named controls kept verbatim for pattern analysis.
	KeyEnter      KeyClass = "Enter"
	KeyTab        KeyClass = "Tab"
	KeySpace      KeyClass = "Space"
	KeyBackspace  KeyClass = "Backspace"
	KeyDelete     KeyClass = "Delete"
	KeyEscape     KeyClass = "Escape"
	KeyArrowUp    KeyClass = "ArrowUp"
	KeyArrowDown  KeyClass = "ArrowDown"
	KeyArrowLeft  KeyClass = "ArrowLeft"
	KeyArrowRight KeyClass = "ArrowRight"
	KeyHome       KeyClass = "Home"
	KeyEnd        KeyClass = "End"
	KeyPageUp     KeyClass = "PageUp"
	KeyPageDown   KeyClass = "PageDown"
	KeyInsert     KeyClass = "Insert"
)

var namedControls = map[KeyClass]struct{}{
	KeyEnter: {}, KeyTab: {}, KeySpace: {}, KeyBackspace: {}, KeyDelete: {},
	KeyEscape: {}, KeyArrowUp: {}, KeyArrowDown: {}, KeyArrowLeft: {},
	KeyArrowRight: {}, KeyHome: {}, KeyEnd: {}, KeyPageUp: {}, KeyPageDown: {},
	KeyInsert: {},
}

// ClassifyKey reduces raw key text to a KeyClass. It is the only place raw
// key content is looked at; the argument must not be retained.
func ClassifyKey(raw string) KeyClass {
	if len(raw) == 1 {
		c := raw[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return KeyAlphanumeric
		}
	}
	if _, ok := namedControls[KeyClass(raw)]; ok {
		return KeyClass(raw)
	}
	return KeyOther
}

// IsNamedControl reports whether k is one of the allow-listed control keys.
func (k KeyClass) IsNamedControl() bool {
	_, ok := namedControls[k]
	return ok
}

// Valid reports whether k is a class ClassifyKey can produce.
func (k KeyClass) Valid() bool {
	return k == KeyAlphanumeric || k == KeyOther || k.IsNamedControl()
}
