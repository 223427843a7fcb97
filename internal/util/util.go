// Package util provides content hashing and front matter parsing for imported posts.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"
)

var ErrNoFrontMatter = errors.New("invalid front matter format")

// FrontMatter is the TOML block delimited by %%% at the top of an imported
// markdown file.
type FrontMatter struct {
	Title    string    `toml:"title"`
	Slug     string    `toml:"slug"`
	Date     time.Time `toml:"date"`
	Excerpt  string    `toml:"excerpt"`
	Cover    string    `toml:"cover"`
	Category string    `toml:"category"`
	Tags     []string  `toml:"tags"`
	Draft    bool      `toml:"draft"`

	// Consumed is the number of bytes of the normalised input taken by the
	// block, so Body can return the remainder.
	Consumed int `toml:"-"`
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// Normalize applies the same newline and leading whitespace handling that
// GetFrontMatter uses, so Consumed offsets can be applied to its result.
func Normalize(md []byte) []byte {
	md = markdown.NormalizeNewlines(md)
	return bytes.TrimLeft(md, "\n \t\r")
}

func GetFrontMatter(md []byte) (*FrontMatter, error) {
	md = Normalize(md)

	delimiter := []byte("%%%")

	if len(md) < 2*len(delimiter) {
		return nil, ErrNoFrontMatter
	}

	if !bytes.HasPrefix(md, delimiter) {
		return nil, ErrNoFrontMatter
	}

	second := bytes.Index(md[len(delimiter):], delimiter)
	if second == -1 {
		return nil, ErrNoFrontMatter
	}

	end := second + 2*len(delimiter)
	block := md[len(delimiter) : end-len(delimiter)]
	if len(bytes.TrimSpace(block)) == 0 {
		return nil, ErrNoFrontMatter
	}

	info := &FrontMatter{}
	if _, err := toml.Decode(string(block), info); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if end < len(md) && md[end] == '\n' {
		end++
	}
	info.Consumed = end

	return info, nil
}

// Body returns the markdown that follows the front matter block.
func Body(md []byte, info *FrontMatter) []byte {
	md = Normalize(md)
	if info == nil || info.Consumed > len(md) {
		return md
	}
	return md[info.Consumed:]
}
