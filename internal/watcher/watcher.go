// Package watcher follows a growing capture log the way tail -F does.
package watcher

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval re-checks the file when no notification arrives, for
// filesystems where fsnotify is unreliable.
const DefaultPollInterval = time.Second

// Options configures a Follower.
type Options struct {
	// FromEnd skips content present when following starts.
	FromEnd bool

	// PollInterval bounds how long Read waits without a notification.
	PollInterval time.Duration
}

// Follower reads an append-only file. Read blocks at end of file until data
// is appended or the follower is closed; after Close it returns io.EOF.
// Truncation restarts from the beginning, and a file replaced under the
// same name (rotation) is reopened.
type Follower struct {
	path string
	poll time.Duration
	fsw  *fsnotify.Watcher

	mu          sync.Mutex
	file        *os.File
	offset      int64
	rotations   int
	truncations int

	wake      chan struct{}
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Follow opens path and starts watching it.
func Follow(path string, opts Options) (*Follower, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}

	var offset int64
	if opts.FromEnd {
		if offset, err = file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return nil, err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		file.Close()
		return nil, err
	}
	// Watch the directory so a recreated file is noticed.
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		file.Close()
		return nil, err
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	f := &Follower{
		path:   absPath,
		poll:   opts.PollInterval,
		fsw:    fsw,
		file:   file,
		offset: offset,
		wake:   make(chan struct{}, 1),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}

	f.wg.Add(1)
	go f.eventLoop()
	return f, nil
}

// Errors returns watcher errors. Read keeps working when they occur.
func (f *Follower) Errors() <-chan error {
	return f.errors
}

// Read implements io.Reader.
func (f *Follower) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	timer := time.NewTimer(f.poll)
	defer timer.Stop()

	for {
		select {
		case <-f.done:
			return 0, io.EOF
		default:
		}

		f.mu.Lock()
		n, err := f.file.Read(p)
		f.offset += int64(n)
		f.mu.Unlock()

		if n > 0 {
			return n, nil
		}
		if errors.Is(err, os.ErrClosed) {
			return 0, io.EOF
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		if err := f.reopenIfReplaced(); err != nil {
			if errors.Is(err, os.ErrClosed) {
				return 0, io.EOF
			}
			return 0, err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(f.poll)

		select {
		case <-f.done:
			return 0, io.EOF
		case <-f.wake:
		case <-timer.C:
		}
	}
}

// reopenIfReplaced handles truncation and rotation at end of file.
func (f *Follower) reopenIfReplaced() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Rotated away; wait for the writer to recreate it.
			return nil
		}
		return err
	}

	cur, err := f.file.Stat()
	if err != nil {
		return err
	}

	if !os.SameFile(info, cur) {
		next, err := os.Open(f.path)
		if err != nil {
			return err
		}
		f.file.Close()
		f.file = next
		f.offset = 0
		f.rotations++
		return nil
	}

	if info.Size() < f.offset {
		if _, err := f.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		f.offset = 0
		f.truncations++
	}
	return nil
}

func (f *Follower) eventLoop() {
	defer f.wg.Done()

	name := filepath.Base(f.path)
	for {
		select {
		case <-f.done:
			return

		case ev, ok := <-f.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			select {
			case f.wake <- struct{}{}:
			default:
			}

		case err, ok := <-f.fsw.Errors:
			if !ok {
				return
			}
			select {
			case f.errors <- err:
			default:
			}
		}
	}
}

// Offset returns the read position in the current file.
func (f *Follower) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Rotations counts how often the file was replaced under the same name.
func (f *Follower) Rotations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotations
}

// Truncations counts how often the file shrank below the read position.
func (f *Follower) Truncations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.truncations
}

// Close stops following. Pending and later Reads return io.EOF.
func (f *Follower) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.fsw.Close()
		f.wg.Wait()

		f.mu.Lock()
		if cerr := f.file.Close(); err == nil {
			err = cerr
		}
		f.mu.Unlock()
	})
	return err
}
