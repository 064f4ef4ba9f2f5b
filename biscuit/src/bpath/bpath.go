// Package bpath canonicalizes paths: it resolves "." and ".." components
// purely lexically, the way fd.Cwd_t needs to turn a (possibly relative)
// path plus a working directory into the absolute, dot-free path vfs
// stores as a vnode's name.
package bpath

import (
	"strings"

	"ustr"
)

// Canonicalize resolves "." and ".." components out of an absolute path
// without touching the filesystem. It assumes p is already absolute
// (fd.Cwd_t.Fullpath guarantees this before calling in).
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	s := p.String()
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			// skip
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return ustr.Ustr("/" + strings.Join(stack, "/"))
}
