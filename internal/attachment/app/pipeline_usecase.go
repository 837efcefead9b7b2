package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"family_chat_service/internal/attachment/domain"
	"family_chat_service/internal/attachment/repository"
	"family_chat_service/pkg/database"
	errprocess "family_chat_service/pkg/err"

	"github.com/google/uuid"
)

// PipelineUseCase moves attachment bytes between clients and blob storage
// and keeps the descriptor registry in step.
type PipelineUseCase interface {
	Upload(ctx context.Context, up domain.UploadReq) (*domain.FileAttachment, error)
	Download(ctx context.Context, fileRef, destPath string, progress func(fraction float64)) error
	PresignURL(ctx context.Context, fileRef string, expiry time.Duration) (string, error)
	Describe(fileRef string) (*domain.FileAttachment, error)
}

type pipelineUseCase struct {
	MinioClient    database.MinIOClientRepo
	AttachmentRepo repository.AttachmentRepo
}

// NewPipelineUseCase create PipelineUseCase
func NewPipelineUseCase(minIO database.MinIOClientRepo, repo repository.AttachmentRepo) PipelineUseCase {
	return &pipelineUseCase{
		MinioClient:    minIO,
		AttachmentRepo: repo,
	}
}

// wrapped so tests can fail fs operations without touching the real disk
var (
	createDir = func(path string) error {
		return os.MkdirAll(path, 0755)
	}

	createFile = func(name string) (*os.File, error) {
		return os.Create(name)
	}

	copyFile = func(dst io.Writer, src io.Reader) (written int64, err error) {
		return io.Copy(dst, src)
	}
)

// downloadChunkSize keeps the copy loop responsive to cancellation and
// gives progress callbacks a useful granularity.
const downloadChunkSize = 32 * 1024

// Upload spools the stream to a temp file first so a half-read client body
// never reaches the bucket, then stores the blob and its descriptor row.
func (uc *pipelineUseCase) Upload(ctx context.Context, up domain.UploadReq) (*domain.FileAttachment, error) {
	if up.FileName == "" {
		return nil, errprocess.Set("upload file name is empty")
	}

	tmpDir := filepath.Join(os.TempDir(), "chat_uploads")
	if err := createDir(tmpDir); err != nil {
		return nil, errprocess.Set(fmt.Sprintf("create temp dir: %v", err))
	}

	tmpPath := filepath.Join(tmpDir, uuid.New().String())
	tmp, err := createFile(tmpPath)
	if err != nil {
		return nil, errprocess.Set(fmt.Sprintf("create temp file: %v", err))
	}
	defer os.Remove(tmpPath)

	written, err := copyFile(tmp, up.File)
	tmp.Close()
	if err != nil {
		return nil, errprocess.Set(fmt.Sprintf("spool upload: %v", err))
	}

	fileRef := fmt.Sprintf("chat/%s/%s", uuid.New().String(), up.FileName)
	if err := uc.MinioClient.UploadFile(ctx, fileRef, tmpPath, up.MimeType); err != nil {
		return nil, errprocess.Set(fmt.Sprintf("store blob: %v", err))
	}

	att := &domain.FileAttachment{
		FileName:      up.FileName,
		FileSizeBytes: written,
		MimeType:      up.MimeType,
		FileKind:      domain.ClassifyFileKind(up.MimeType, up.FileName),
		FileRef:       fileRef,
	}
	if err := uc.AttachmentRepo.Create(att); err != nil {
		return nil, errprocess.Set(fmt.Sprintf("register attachment: %v", err))
	}
	return att, nil
}

// Download streams the blob to destPath. The bytes land in a temp file and
// only move to destPath once the stream completed, so a cancelled or broken
// download never leaves a partial file behind. progress may be nil; the
// fraction is -1 when the blob size is unknown.
func (uc *pipelineUseCase) Download(ctx context.Context, fileRef, destPath string, progress func(fraction float64)) error {
	obj, size, err := uc.MinioClient.GetObjectStream(ctx, fileRef)
	if err != nil {
		return errprocess.Set(fmt.Sprintf("open blob %s: %v", fileRef, err))
	}
	defer obj.Close()

	if err := createDir(filepath.Dir(destPath)); err != nil {
		return errprocess.Set(fmt.Sprintf("create download dir: %v", err))
	}

	tmpPath := destPath + ".partial"
	tmp, err := createFile(tmpPath)
	if err != nil {
		return errprocess.Set(fmt.Sprintf("create download temp: %v", err))
	}

	var done int64
	buf := make([]byte, downloadChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}

		n, readErr := obj.Read(buf)
		if n > 0 {
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				tmp.Close()
				os.Remove(tmpPath)
				return errprocess.Set(fmt.Sprintf("write download temp: %v", writeErr))
			}
			done += int64(n)
			if progress != nil {
				if size > 0 {
					progress(float64(done) / float64(size))
				} else {
					progress(-1)
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return errprocess.Set(fmt.Sprintf("read blob %s: %v", fileRef, readErr))
		}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errprocess.Set(fmt.Sprintf("close download temp: %v", err))
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return errprocess.Set(fmt.Sprintf("finalize download: %v", err))
	}
	return nil
}

// PresignURL hands out a short-lived direct link so large blobs bypass the
// chat service entirely.
func (uc *pipelineUseCase) PresignURL(ctx context.Context, fileRef string, expiry time.Duration) (string, error) {
	if _, err := uc.AttachmentRepo.FindByRef(fileRef); err != nil {
		return "", errprocess.Set(fmt.Sprintf("unknown attachment %s: %v", fileRef, err))
	}
	return uc.MinioClient.PresignGetURL(ctx, fileRef, expiry)
}

func (uc *pipelineUseCase) Describe(fileRef string) (*domain.FileAttachment, error) {
	return uc.AttachmentRepo.FindByRef(fileRef)
}
