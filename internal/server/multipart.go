package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/fundood999/agentic-ai-backend/internal/intake"
)

// readImageForm streams a multipart body into an intake.Request. The file
// part's declared type is checked before any of its bytes are read, and at
// most one byte past the size limit is ever buffered. Only the first file
// part named "file" is used; other parts are skipped.
func readImageForm(r *http.Request) (*intake.Request, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, intake.Validation(intake.MsgNoFile)
	}

	req := &intake.Request{}
	var rawMetadata string

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(err)
		}

		switch {
		case part.FormName() == "file" && part.FileName() != "" && req.Body == nil:
			contentType := part.Header.Get("Content-Type")
			if err := intake.CheckContentType(contentType); err != nil {
				_ = part.Close()
				return nil, err
			}

			data, err := io.ReadAll(io.LimitReader(part, intake.MaxImageBytes+1))
			if err != nil {
				_ = part.Close()
				return nil, readError(err)
			}
			if err := intake.CheckSize(int64(len(data))); err != nil {
				_ = part.Close()
				return nil, err
			}

			req.Body = data
			req.FileName = part.FileName()
			req.ContentType = contentType

		case part.FormName() == "metadata" && part.FileName() == "":
			data, err := io.ReadAll(io.LimitReader(part, maxMetadataBytes+1))
			if err != nil {
				_ = part.Close()
				return nil, readError(err)
			}
			if len(data) > maxMetadataBytes {
				_ = part.Close()
				return nil, intake.Validation(intake.MsgBadMetadata)
			}
			rawMetadata = string(data)
		}

		if err := part.Close(); err != nil {
			return nil, readError(err)
		}
	}

	if req.Body == nil {
		return nil, intake.Validation(intake.MsgNoFile)
	}

	metadata, err := intake.ParseMetadata(rawMetadata)
	if err != nil {
		return nil, err
	}
	req.Metadata = metadata

	return req, nil
}

// readError classifies a failure while reading the body. Running into the
// body limit is the client's fault; anything else is not anticipated.
func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return intake.Validation(intake.MsgTooLarge)
	}
	return intake.Unhandled(intake.MsgUploadError, err)
}
