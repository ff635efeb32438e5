package uploads

import (
	"bufio"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"mp4converter/tempstore"
)

// FieldName is the multipart field carrying the video.
const FieldName = "file"

// sniffLen matches the default read limit of mimetype.
const sniffLen = 3072

// Storage is the part of tempstore.Store the receiver needs.
type Storage interface {
	Allocate(kind tempstore.Kind, originalName string) (string, error)
	Remove(path string) error
}

type Receiver struct {
	store    Storage
	maxBytes int64
}

func NewReceiver(store Storage, maxBytes int64) *Receiver {
	return &Receiver{store: store, maxBytes: maxBytes}
}

func (rc *Receiver) MaxBytes() int64 { return rc.maxBytes }

// Receive streams the file field of a multipart request to disk and returns
// it as a validated Input. The declared type is checked before anything is
// written. On any error no file is left behind.
func (rc *Receiver) Receive(r *http.Request) (*Input, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, ErrMissingInput
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed multipart body: %v", ErrMissingInput, err)
		}
		if part.FormName() != FieldName || part.FileName() == "" {
			part.Close()
			continue
		}

		input, err := rc.receivePart(part)
		part.Close()
		return input, err
	}
}

func (rc *Receiver) receivePart(part *multipart.Part) (*Input, error) {
	return rc.receive(part, part.FileName(), part.Header.Get("Content-Type"))
}

func (rc *Receiver) receive(body io.Reader, filename, declared string) (*Input, error) {
	if err := Validate(Candidate{Filename: filename, ContentType: declared, Size: -1}, rc.maxBytes); err != nil {
		log.Infof("rejected %q: %v", filename, err)
		return nil, err
	}

	br := bufio.NewReaderSize(body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read upload %q: %w", filename, err)
	}
	if err := checkContent(head); err != nil {
		log.Infof("rejected %q: %v", filename, err)
		return nil, err
	}

	path, err := rc.store.Allocate(tempstore.KindInput, filename)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		rc.store.Remove(path)
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(br, rc.maxBytes+1))
	closeErr := f.Close()

	if copyErr == nil && closeErr == nil && n <= rc.maxBytes {
		log.Debugf("received %q (%s, %d bytes) -> %s", filename, declared, n, path)
		return &Input{
			Filename:    filename,
			ContentType: declared,
			Size:        n,
			Path:        path,
		}, nil
	}

	if rmErr := rc.store.Remove(path); rmErr != nil {
		log.Errorf("error removing rejected upload %s: %v", path, rmErr)
	}
	if copyErr != nil {
		return nil, fmt.Errorf("receive upload %q: %w", filename, copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("write upload %q: %w", filename, closeErr)
	}
	err = Validate(Candidate{Filename: filename, ContentType: declared, Size: n}, rc.maxBytes)
	log.Infof("rejected %q: %v", filename, err)
	return nil, err
}

// checkContent rejects bodies that are recognisably not media, whatever
// their declared type says. Unknown binary data is left for ffmpeg to judge.
func checkContent(head []byte) error {
	if len(head) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidFormat)
	}
	detected := mimetype.Detect(head)
	if detected.Is("application/octet-stream") {
		return nil
	}
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") || strings.HasPrefix(m.String(), "audio/") {
			return nil
		}
	}
	return fmt.Errorf("%w: content looks like %s", ErrInvalidFormat, detected.String())
}
