package layer

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/amithasarath/test-common-framework/utils"
)

// Zip entries get a fixed timestamp so identical inputs give identical archives.
var archiveEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

var skippedNames = map[string]bool{
	"__pycache__": true,
	".DS_Store":   true,
}

// DiscoverPackages lists the top level entries of an installed dependency directory in name order.
func DiscoverPackages(root string) ([]Package, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", root, err)
	}

	packages := make([]Package, 0, len(entries))
	for _, entry := range entries {
		if skippedNames[entry.Name()] {
			continue
		}
		packages = append(packages, Package{
			Name:  entry.Name(),
			Path:  filepath.Join(root, entry.Name()),
			IsDir: entry.IsDir(),
		})
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })
	return packages, nil
}

// Plan splits packages into groups of at most perLayer, one group per layer.
func Plan(packages []Package, perLayer int) ([][]Package, error) {
	if len(packages) == 0 {
		return nil, ErrNothingToBuild
	}
	if perLayer <= 0 {
		perLayer = len(packages)
	}
	groups, err := utils.ChunkList(packages, perLayer)
	if err != nil {
		return nil, err
	}
	if len(groups) > MaxLayersPerFunction {
		return nil, fmt.Errorf("%w: %d packages at %d per layer need %d layers, limit is %d",
			ErrTooManyLayers, len(packages), perLayer, len(groups), MaxLayersPerFunction)
	}
	return groups, nil
}

// BuildArchive writes packages as a zip to w, each entry placed under prefix.
// Files are added in lexical order with a fixed timestamp.
func BuildArchive(w io.Writer, packages []Package, prefix string) (ArchiveStats, error) {
	var stats ArchiveStats
	archive := zip.NewWriter(w)

	for _, pkg := range packages {
		err := filepath.WalkDir(pkg.Path, func(current string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				if skippedNames[entry.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() || skippedNames[entry.Name()] {
				return nil
			}

			relative, err := filepath.Rel(pkg.Path, current)
			if err != nil {
				return err
			}
			name := pkg.Name
			if pkg.IsDir {
				name = path.Join(pkg.Name, filepath.ToSlash(relative))
			}

			written, err := addFile(archive, current, entry, prefix+name)
			if err != nil {
				return err
			}
			stats.Files++
			stats.UncompressedBytes += written
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("unable to archive %s: %w", pkg.Name, err)
		}
	}

	if err := archive.Close(); err != nil {
		return stats, fmt.Errorf("unable to finish archive: %w", err)
	}
	return stats, nil
}

func addFile(archive *zip.Writer, source string, entry fs.DirEntry, name string) (int64, error) {
	info, err := entry.Info()
	if err != nil {
		return 0, err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, err
	}
	header.Name = name
	header.Method = zip.Deflate
	header.Modified = archiveEpoch

	writer, err := archive.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	file, err := os.Open(source)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	return io.Copy(writer, file)
}

// CheckSize rejects archives Lambda would refuse.
func CheckSize(stats ArchiveStats) error {
	if stats.CompressedBytes > MaxCompressedBytes {
		return fmt.Errorf("%w: %d bytes compressed, limit is %d", ErrLayerTooLarge, stats.CompressedBytes, MaxCompressedBytes)
	}
	if stats.UncompressedBytes > MaxUncompressedBytes {
		return fmt.Errorf("%w: %d bytes uncompressed, limit is %d", ErrLayerTooLarge, stats.UncompressedBytes, MaxUncompressedBytes)
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(filepath.ToSlash(strings.TrimSpace(prefix)), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
