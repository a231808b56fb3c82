package services

import (
	"fmt"
	"path/filepath"
)

// PreviewDirName is the directory under the prefetch root holding preview files
const PreviewDirName = "htmlTempFiles"

// PreviewPath locates one preview file. It is a value: every With method
// returns a modified copy and leaves the receiver untouched.
type PreviewPath struct {
	root      string
	account   string
	page      int
	messageID string
	ext       string
}

// NewPreviewPath returns a path rooted at root with the default extension
func NewPreviewPath(root string) PreviewPath {
	return PreviewPath{root: root, ext: ".html"}
}

// WithAccount returns p for account
func (p PreviewPath) WithAccount(account string) PreviewPath {
	p.account = account
	return p
}

// WithPage returns p for zero-based page n
func (p PreviewPath) WithPage(n int) PreviewPath {
	p.page = n
	return p
}

// WithMessage returns p for message id
func (p PreviewPath) WithMessage(id string) PreviewPath {
	p.messageID = id
	return p
}

// WithExtension returns p with file extension ext
func (p PreviewPath) WithExtension(ext string) PreviewPath {
	p.ext = ext
	return p
}

// Base is the preview tree shared by all accounts
func (p PreviewPath) Base() string {
	return filepath.Join(p.root, PreviewDirName)
}

// AccountDir is the preview tree of the account
func (p PreviewPath) AccountDir() string {
	return filepath.Join(p.Base(), segment(p.account))
}

// Dir is the directory of the page
func (p PreviewPath) Dir() string {
	return filepath.Join(p.AccountDir(), pageDirName(p.page))
}

// File is the preview file of the message
func (p PreviewPath) File() string {
	return filepath.Join(p.Dir(), "quicklook-"+segment(p.messageID)+p.ext)
}

// String returns File()
func (p PreviewPath) String() string { return p.File() }

func pageDirName(n int) string { return fmt.Sprintf("page-%d", n) }

// segment keeps ids and aliases inside their directory
func segment(s string) string {
	if s == "" {
		return ""
	}
	s = filepath.Base(s)
	if s == "." || s == ".." || s == string(filepath.Separator) {
		return ""
	}
	return s
}
