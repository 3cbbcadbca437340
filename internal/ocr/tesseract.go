// Package ocr 基于tesseract的图片文字识别
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

// TesseractCaptioner 使用tesseract识别图片中的文字作为说明
type TesseractCaptioner struct {
	client    *gosseract.Client
	languages []string
	logger    *logrus.Logger
	mu        sync.Mutex
}

// Option 配置选项
type Option func(*TesseractCaptioner)

// WithLanguages 设置识别语言，例如 eng、chi_sim
func WithLanguages(langs ...string) Option {
	return func(c *TesseractCaptioner) {
		if len(langs) > 0 {
			c.languages = langs
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(c *TesseractCaptioner) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTesseractCaptioner 创建识别器，调用方负责Close
func NewTesseractCaptioner(opts ...Option) (*TesseractCaptioner, error) {
	c := &TesseractCaptioner{
		languages: []string{"eng"},
		logger:    logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = gosseract.NewClient()
	if err := c.client.SetLanguage(c.languages...); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to set ocr language: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"languages": c.languages,
		"version":   gosseract.Version(),
	}).Info("Tesseract captioner initialized")

	return c, nil
}

// Caption 识别图片中的文字，结果可能为空
func (c *TesseractCaptioner) Caption(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image for ocr: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load image into tesseract: %w", err)
	}
	text, err := c.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognition failed: %w", err)
	}
	return text, nil
}

// Close 释放tesseract资源
func (c *TesseractCaptioner) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
