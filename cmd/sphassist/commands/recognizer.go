package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// promptRecognizer writes the captcha image to a temp file and asks the
// operator to read it. It stands in for an OCR engine; the scraper only
// sees the Recognizer interface either way.
type promptRecognizer struct{}

func (promptRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	path := filepath.Join(os.TempDir(), "sphassist-captcha.png")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", err
	}

	fmt.Printf("captcha image saved to %s\nenter the 4 characters: ", path)

	// the reader goroutine stays blocked on stdin if ctx is canceled
	// before the operator answers; it lives until the process exits,
	// which for this CLI is moments later
	lines := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		lines <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-lines:
		return line, nil
	}
}
