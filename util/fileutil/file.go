package fileutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/option"
	"github.com/viant/afs/storage"
	_ "github.com/viant/afsc/s3"
)

var fileSystem = afs.New()

func ReadFileBytes(filename string) ([]byte, error) {
	file, err := fileSystem.OpenURL(context.Background(), filename)
	if err != nil {
		return nil, err
	}
	return readAndClose(file)
}

// readAndClose drains file and closes it. A failed close fails the read.
func readAndClose(file io.ReadCloser) (content []byte, err error) {
	defer func() {
		if closeErr := CloseFile(file); closeErr != nil {
			content = nil
			err = errors.Join(err, closeErr)
		}
	}()

	buf := &bytes.Buffer{}
	if _, err = io.Copy(buf, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func CloseFile(file io.Closer) error {
	return file.Close()
}

func GetPathType(path string) string {
	if strings.HasPrefix(path, "s3://") {
		return "S3"
	}
	return "os"
}

// PathJoinSafe wrapper around filepath.Join to ensure that paths are correctly constructed
// if the path is a normal OS path, just use filepath.Join
// if the path is S3, trim any trailing slashes and construct it manually from the components
// so that double slashes (e.g. s3://) are preserved.
func PathJoinSafe(elem ...string) string {
	var path string

	switch GetPathType(elem[0]) {
	case "S3":
		basePath := strings.TrimSuffix(elem[0], "/")
		path = basePath + string(filepath.Separator) + filepath.Join(elem[1:]...)
	default:
		path = filepath.Join(elem...)
	}
	return path
}

func FileExists(filename string) (bool, error) {
	return fileSystem.Exists(context.Background(), filename)
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) (bool, error) {
	exists, err := FileExists(path)
	if err != nil || !exists {
		return false, err
	}
	object, err := fileSystem.Object(context.Background(), path)
	if err != nil {
		return false, err
	}
	return object.IsDir(), nil
}

// EnsureDir creates the directory at path, including parents, unless it already exists.
// An existing regular file at path is an error.
func EnsureDir(path string) error {
	exists, err := FileExists(path)
	if err != nil {
		return err
	}
	if exists {
		isDir, dirErr := IsDir(path)
		if dirErr != nil {
			return dirErr
		}
		if !isDir {
			return fmt.Errorf("%s exists and is not a directory", path)
		}
		return nil
	}
	return fileSystem.Create(context.Background(), path, os.ModePerm, true)
}

// Walk visits every object under root.
func Walk(ctx context.Context, root string, visit storage.OnVisit) error {
	return fileSystem.Walk(ctx, root, visit)
}

// DeleteFile removes filename.
func DeleteFile(filename string) error {
	return fileSystem.Delete(context.Background(), filename)
}

// NewFileWriter truncates filename if it exists and returns a writer to it.
// The parent directory is created when missing.
func NewFileWriter(filename string) (io.WriteCloser, error) {
	exists, err := FileExists(filename)
	if err != nil {
		return nil, err
	}
	if exists {
		if err = DeleteFile(filename); err != nil {
			return nil, err
		}
	}
	if GetPathType(filename) == "os" {
		if dirErr := EnsureDir(filepath.Dir(filename)); dirErr != nil {
			return nil, dirErr
		}
	}
	return fileSystem.NewWriter(context.Background(), filename, 0o644, option.NewSkipChecksum(true))
}
