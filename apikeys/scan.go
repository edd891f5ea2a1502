package apikeys

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// googleKeyPattern matches Google API keys: "AIza" followed by 35 url-safe characters
var googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)

// scannedExtensions are the source files a key could be committed in.
// .env files are skipped on purpose: that is where keys belong.
var scannedExtensions = map[string]bool{
	".go": true, ".js": true, ".mjs": true, ".ts": true, ".vue": true,
	".html": true, ".json": true, ".yaml": true, ".yml": true, ".py": true,
}

const maxScannedFileSize = 1 << 20

// Finding is a literal key found in a file
type Finding struct {
	Path string
	Line int
	Key  string // redacted
}

// ContainsLiteralKey reports whether s contains something shaped like a Google API key
func ContainsLiteralKey(s string) bool {
	return googleKeyPattern.MatchString(s)
}

// ScanForLiteralKeys walks the given roots looking for committed Google API keys.
// Like the go tool, it ignores directories starting with "." or "_", plus
// node_modules and vendor.
func ScanForLiteralKeys(roots ...string) ([]Finding, error) {
	var findings []Finding

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !scannedExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			info, err := d.Info()
			if err != nil || info.Size() > maxScannedFileSize {
				return nil
			}

			found, err := scanFile(path)
			if err != nil {
				return err
			}
			findings = append(findings, found...)
			return nil
		})
		if err != nil {
			return findings, err
		}
	}

	return findings, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
		name == "node_modules" || name == "vendor" || name == "testdata"
}

func scanFile(path string) ([]Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []Finding
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxScannedFileSize)
	for line := 1; scanner.Scan(); line++ {
		for _, match := range googleKeyPattern.FindAllString(scanner.Text(), -1) {
			findings = append(findings, Finding{Path: path, Line: line, Key: Redact(match)})
		}
	}
	return findings, scanner.Err()
}
