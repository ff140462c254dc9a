package assets

import (
	"path"
	"path/filepath"
	"strings"
)

// ContentPrefix is the mount point of a UE5 project's content directory.
const ContentPrefix = "/Game"

// NameFromFile derives the Unreal asset name from an exported file:
// "exports/PlayerShip.fbx" becomes "PlayerShip".
func NameFromFile(file string) string {
	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(file, "\\", "/")))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Format returns the lower-case file extension without the dot.
func Format(file string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
}

func IsContentPath(p string) bool {
	return p == ContentPrefix || strings.HasPrefix(p, ContentPrefix+"/")
}

// Destination normalizes a destination folder. Content paths are cleaned;
// anything else is treated as a folder below root.
func Destination(root, dest string) string {
	dest = strings.TrimSpace(strings.ReplaceAll(dest, "\\", "/"))
	if dest == "" {
		return path.Clean(root)
	}
	if IsContentPath(dest) {
		return path.Clean(dest)
	}
	return path.Join(root, strings.Trim(dest, "/"))
}

// ObjectPath joins a content folder and asset name: "/Game/Ships" + "PlayerShip".
func ObjectPath(dest, name string) string {
	if name == "" {
		return dest
	}
	return path.Join(dest, name)
}
