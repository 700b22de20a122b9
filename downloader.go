//go:build !NODOWNLOAD

package npubench

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	hfd "github.com/bodaay/HuggingFaceModelDownloader/hfdownloader"

	"github.com/knights-analytics/npubench/util/fileutil"
)

// DownloadOptions is a struct of options that can be passed to DownloadModel.
type DownloadOptions struct {
	AuthToken             string
	Branch                string
	SkipSha               bool
	MaxRetries            int
	RetryInterval         int
	ConcurrentConnections int
	Verbose               bool
}

// NewDownloadOptions creates new DownloadOptions struct with default values.
// Override the values to specify different download options.
func NewDownloadOptions() DownloadOptions {
	d := DownloadOptions{}
	d.Branch = "main"
	d.MaxRetries = 5
	d.RetryInterval = 5
	d.ConcurrentConnections = 5
	return d
}

// DownloadModel downloads a model repository from huggingface into destination and returns the
// path of the downloaded directory. The repository must contain at least one .onnx file.
func DownloadModel(modelName string, destination string, options DownloadOptions) (string, error) {
	// replicates code in hf downloader
	modelP := modelName
	if strings.Contains(modelP, ":") {
		modelP = strings.Split(modelName, ":")[0]
	}
	modelPath := path.Join(destination, strings.ReplaceAll(modelP, "/", "_"))

	if err := fileutil.EnsureDir(destination); err != nil {
		return "", err
	}

	var err error
	for i := 0; i < options.MaxRetries; i++ {
		err = hfd.DownloadModel(modelName, false, options.SkipSha, false, destination, options.Branch, options.ConcurrentConnections, options.AuthToken, !options.Verbose)
		if err == nil {
			break
		}
		if options.Verbose {
			fmt.Printf("Warning: attempt %d / %d failed, error: %s\n", i+1, options.MaxRetries, err)
		}
		time.Sleep(time.Duration(options.RetryInterval) * time.Second)
	}
	if err != nil {
		return "", fmt.Errorf("failed to download %s after %d attempts: %w", modelName, options.MaxRetries, err)
	}

	onnxFiles, err := findOnnxFiles(modelPath)
	if err != nil {
		return "", err
	}
	if len(onnxFiles) == 0 {
		return "", fmt.Errorf("model %s does not have a .onnx file, npubench only works with onnx models", modelName)
	}
	if options.Verbose {
		fmt.Printf("\nDownload of %s completed successfully\n", modelName)
	}
	return modelPath, nil
}

func findOnnxFiles(root string) ([]string, error) {
	var onnxFiles []string
	walker := func(_ context.Context, _ string, parent string, info os.FileInfo, _ io.Reader) (bool, error) {
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".onnx") {
			onnxFiles = append(onnxFiles, fileutil.PathJoinSafe(root, parent, info.Name()))
		}
		return true, nil
	}
	err := fileutil.Walk(context.Background(), root, walker)
	return onnxFiles, err
}
