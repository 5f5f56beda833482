package controllers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 上传失败时写进凭证字段的可见标记，借还照常完成
const uploadErrorPrefix = "Upload Error: "

const maxProofBytes = 5 << 20

// ProofStore 把借还照片存到本地目录，返回 /uploads/... 引用
type ProofStore struct {
	Dir string
}

func NewProofStore(dir string) *ProofStore { return &ProofStore{Dir: dir} }

// Resolve 已有引用直接用；否则上传 base64 图片。必须在进 gate 之前调用。
func (p *ProofStore) Resolve(userID, ref, image string) string {
	if ref = strings.TrimSpace(ref); ref != "" || strings.TrimSpace(image) == "" {
		return ref
	}
	saved, err := p.Save(userID, image)
	if err != nil {
		zap.L().Warn("proof upload failed", zap.String("user", userID), zap.Error(err))
		return uploadErrorPrefix + err.Error()
	}
	return saved
}

// Save 接受 data URL 或纯 base64
func (p *ProofStore) Save(userID, image string) (string, error) {
	if p.Dir == "" {
		return "", errors.New("upload dir not configured")
	}
	data := image
	if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i > 0 {
		data = data[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if len(raw) == 0 || len(raw) > maxProofBytes {
		return "", fmt.Errorf("image size %d out of range", len(raw))
	}

	ext := ".bin"
	switch http.DetectContentType(raw) {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	}

	day := time.Now().Format("20060102")
	dir := filepath.Join(p.Dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s%s", safeName(userID), uuid.NewString(), ext)
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		return "", err
	}
	return "/uploads/" + day + "/" + name, nil
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// Discard 删除本次请求刚上传的文件（批次被拒时用），只处理 /uploads/ 下的引用
func (p *ProofStore) Discard(refs ...string) {
	for _, ref := range refs {
		rel, ok := strings.CutPrefix(ref, "/uploads/")
		if !ok || p.Dir == "" || strings.Contains(rel, "..") {
			continue
		}
		if err := os.Remove(filepath.Join(p.Dir, filepath.FromSlash(rel))); err != nil && !errors.Is(err, os.ErrNotExist) {
			zap.L().Warn("discard proof", zap.String("ref", ref), zap.Error(err))
		}
	}
}
