// Package qr renders scan payloads into PNG files served back to the desk UI
// and pushed to participants.
package qr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 512

type Generator struct {
	dir string
}

func New(dir string) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("qr: create output dir: %w", err)
	}
	return &Generator{dir: dir}, nil
}

func (g *Generator) Dir() string { return g.dir }

// Generate writes a QR image for content and returns its absolute path.
func (g *Generator) Generate(content string) (string, error) {
	path := filepath.Join(g.dir, uuid.NewString()+".png")
	if err := qrcode.WriteFile(content, qrcode.Medium, imageSize, path); err != nil {
		return "", fmt.Errorf("qr: write image: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
