package handlers

import (
	"github.com/freelance-market/backend/internal/http/dto"
	"github.com/freelance-market/backend/internal/models"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/freelance-market/backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FileHandler struct {
	fileRepo *repositories.FileRepo
	store    *storage.LocalStore
	maxSize  int64
	log      *zap.Logger
}

func NewFileHandler(fileRepo *repositories.FileRepo, store *storage.LocalStore, maxSize int64, log *zap.Logger) *FileHandler {
	return &FileHandler{fileRepo: fileRepo, store: store, maxSize: maxSize, log: log}
}

func (h *FileHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "file is required"})
	}
	if fh.Size > h.maxSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{Error: "file too large"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "cannot read file"})
	}
	defer src.Close()

	storedName, _, err := h.store.Save(fh.Filename, src)
	if err != nil {
		h.log.Error("file store failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	file := &models.File{
		ID:       uuid.New(),
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Path:     storedName,
	}
	if err := h.fileRepo.Create(c.Context(), file); err != nil {
		h.log.Error("file record create failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: file})
}

func (h *FileHandler) Download(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid file id"})
	}

	file, err := h.fileRepo.GetByID(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	rc, err := h.store.Open(file.Path)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "file content missing"})
	}

	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+file.FileName+`"`)
	return c.SendStream(rc)
}
