package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

const defaultMaxSize = 5 * 1024 * 1024 // 5MB

// RotatingWriter appends to a log file and swaps it out for a fresh one
// once it grows past maxSize, keeping a single .1 backup.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup wires stdlib log output to both stdout and a rotating file.
// The returned writer should be closed on shutdown.
func Setup(logPath string) (*RotatingWriter, error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	rw := &RotatingWriter{
		file:    f,
		path:    logPath,
		size:    size,
		maxSize: defaultMaxSize,
	}

	if size > rw.maxSize {
		rw.rotate()
	}

	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}

	return n, err
}

func (w *RotatingWriter) rotate() {
	w.file.Close()
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
