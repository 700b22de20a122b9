//go:build NODOWNLOAD

package npubench

import "errors"

type DownloadOptions struct {
	AuthToken             string
	Branch                string
	SkipSha               bool
	MaxRetries            int
	RetryInterval         int
	ConcurrentConnections int
	Verbose               bool
}

func NewDownloadOptions() DownloadOptions {
	return DownloadOptions{}
}

func DownloadModel(_ string, _ string, _ DownloadOptions) (string, error) {
	return "", errors.New("model download is disabled in builds with the NODOWNLOAD tag")
}
