// Package provider implements the Provider Supervisor (spec.md §4.4):
// unpacking a provider archive, spawning and supervising the child process,
// probing readiness, and monitoring health — with no automatic restart on
// crash.
package provider

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/gzip"

	"github.com/latticerun/hostcore/cmn"
)

// Archive is an extracted provider package: the claims JWT plus one binary
// per architecture/OS pair (spec.md §4.4: "tar+gzip archive containing
// claims.jwt and bin/<arch>-<os>[.exe]").
type Archive struct {
	ClaimsToken string
	BinaryPath  string
}

// ExtractArchive unpacks a tar.gz provider package into destDir and returns
// the claims token plus the path to the binary matching the current
// GOARCH/GOOS (spec.md §4.4 edge case: "no matching binary for this host's
// arch/os" is a ProviderSpawnFailed, not a partial extraction).
func ExtractArchive(r io.Reader, destDir string) (*Archive, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "provider archive is not gzip", err)
	}
	defer gz.Close()

	wantBin := binaryName()
	var claimsBytes []byte
	var binaryPath string

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "corrupt provider archive", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		clean := filepath.Clean(hdr.Name)
		if clean == "." || filepath.IsAbs(clean) {
			continue
		}
		dest := filepath.Join(destDir, clean)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "create archive directory", err)
		}
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return nil, cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "write archive entry", err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return nil, cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "copy archive entry", err)
		}
		f.Close()

		switch clean {
		case "claims.jwt":
			claimsBytes, err = os.ReadFile(dest)
			if err != nil {
				return nil, cmn.NewKindErr(cmn.ErrProviderSpawnFailed, "read extracted claims.jwt", err)
			}
		case filepath.Join("bin", wantBin):
			os.Chmod(dest, 0o755)
			binaryPath = dest
		}
	}

	if claimsBytes == nil {
		return nil, cmn.Kindf(cmn.ErrProviderSpawnFailed, "archive is missing claims.jwt")
	}
	if binaryPath == "" {
		return nil, cmn.Kindf(cmn.ErrProviderSpawnFailed, "archive has no binary for %s", wantBin)
	}
	return &Archive{ClaimsToken: string(claimsBytes), BinaryPath: binaryPath}, nil
}

func binaryName() string {
	name := fmt.Sprintf("%s-%s", runtime.GOARCH, runtime.GOOS)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}
