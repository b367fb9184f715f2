package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MediaStore отвечает за физическое хранение снапшотов.
// В БД остается только относительный путь, который вернул Save.
type MediaStore interface {
	Save(at time.Time, filename string, data []byte) (string, error)
}

// DiskStore раскладывает файлы по датированным каталогам:
// <root>/snapshots/2026/01/31/<filename>. Структура повторяет привычную
// раскладку media-хранилищ и упрощает ручную выгрузку за период.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, fmt.Errorf("media root is not configured")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create media root %s: %w", root, err)
	}
	return &DiskStore{root: root}, nil
}

func (d *DiskStore) Save(at time.Time, filename string, data []byte) (string, error) {
	if at.IsZero() {
		at = time.Now()
	}
	rel := filepath.Join("snapshots", at.UTC().Format("2006/01/02"), filename)

	abs := filepath.Join(d.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return rel, nil
}

// Root возвращает корень хранилища (нужен консоли для отдачи файлов)
func (d *DiskStore) Root() string {
	return d.root
}
