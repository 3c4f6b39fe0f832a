// Package upload реализует дисковое хранилище загружаемых файлов:
// вложений к сообщениям и документов.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxFileSize ограничивает размер одного загружаемого файла.
const MaxFileSize = 25 << 20 // 25 МБ

// Расширения файлов, разрешённые к загрузке.
var allowedExtensions = map[string]struct{}{
	".jpeg": {}, ".jpg": {}, ".png": {}, ".gif": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".txt": {}, ".zip": {},
}

// ErrUnsupportedType возвращается при попытке загрузить файл неподдерживаемого типа.
var ErrUnsupportedType = fmt.Errorf("file type not supported")

// Store сохраняет файлы в каталоге на диске.
type Store struct {
	dir string
}

// NewStore создаёт хранилище в указанном каталоге, создавая его при необходимости.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SavedFile описывает сохранённый файл.
type SavedFile struct {
	Filename string
	Path     string
	Size     int64
}

// Save записывает файл на диск под уникальным именем и возвращает его описание.
// Имя файла очищается от путевых компонентов; расширение проверяется по списку
// разрешённых.
func (s *Store) Save(filename string, r io.Reader) (*SavedFile, error) {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	// Префикс с меткой времени исключает коллизии одноимённых файлов.
	stored := fmt.Sprintf("%d-%s", time.Now().UnixNano(), base)
	full := filepath.Join(s.dir, stored)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(r, MaxFileSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if size > MaxFileSize {
		os.Remove(full)
		return nil, fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}

	return &SavedFile{
		Filename: base,
		Path:     stored,
		Size:     size,
	}, nil
}

// Open открывает сохранённый файл по пути, возвращённому Save.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	clean := filepath.Base(path)
	f, err := os.Open(filepath.Join(s.dir, clean))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Remove удаляет сохранённый файл. Отсутствие файла не считается ошибкой.
func (s *Store) Remove(path string) error {
	clean := filepath.Base(path)
	err := os.Remove(filepath.Join(s.dir, clean))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
