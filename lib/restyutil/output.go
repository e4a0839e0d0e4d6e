package restyutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// TranscriptOutput receives one transcript per completed request.
type TranscriptOutput interface {
	Write(id string, contents string)
}

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput creates dir if needed, transcripts of earlier runs are kept.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write transcript file", "id", id, "err", err)
	}
}

// RecordTranscripts writes a transcript of every response received by client to output,
// prefix keeps transcripts of different runs apart. A nil output is a no-op.
func RecordTranscripts(client *resty.Client, prefix string, output TranscriptOutput) {
	if output == nil {
		return
	}

	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		n := atomic.AddUint64(&counter, 1)
		id := fmt.Sprintf("%s-%03d-%s.txt", prefix, n, res.Request.Method)
		output.Write(id, FormatTranscript(res))
		return nil
	})
}
