// Package logging sets up the append-only diagnostic log written during install/uninstall.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FileName returns the log file name for a product, e.g. "MyApp-setup.log".
func FileName(productName string) string {
	return productName + "-setup.log"
}

// New opens <dir>/<product>-setup.log for appending (dir defaults to the per-user temp
// dir) and returns a logger whose entries all carry the product and a per-run id.
func New(dir, productName, level string) (*logrus.Entry, io.Closer, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName(productName)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return NewWithWriter(f, productName, level), f, nil
}

// NewWithWriter is New for an arbitrary writer.
func NewWithWriter(w io.Writer, productName, level string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l.WithFields(logrus.Fields{
		"product": productName,
		"run":     uuid.NewString(),
	})
}
