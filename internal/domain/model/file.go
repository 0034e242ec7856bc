// Пакет model — доменные модели Imagery.
// FileRecord — единая структура метаданных загруженного файла,
// используется как in-memory представление и как формат записи
// в индексном документе files.json.
package model

// FileRecord — метаданные загруженного файла.
// Ключом в индексе служит ID; на диске файл хранится под StoredFileName.
type FileRecord struct {
	// ID — уникальный идентификатор файла (случайная
	// алфавитно-цифровая строка фиксированной длины)
	ID string `json:"id"`

	// Owner — имя пользователя, загрузившего файл.
	// "Unknown", если авторизация не настроена.
	Owner string `json:"owner"`

	// UploadedAtMillis — время загрузки в миллисекундах Unix (UTC).
	// Неизменяемое поле.
	UploadedAtMillis int64 `json:"uploadedAtMillis"`

	// StoredFileName — имя файла на диске: ID + Extension.
	// Также является path-компонентом публичного URL.
	StoredFileName string `json:"storedFileName"`

	// OriginalFileName — имя файла, переданное клиентом.
	// Только для отображения, в путях не используется.
	OriginalFileName string `json:"originalFileName"`

	// Extension — расширение оригинального файла с точкой
	// (".png"). Может быть пустым.
	Extension string `json:"extension"`

	// MimeType — MIME-тип, определённый по расширению.
	// Может быть пустым, если расширение неизвестно.
	MimeType string `json:"mimeType"`

	// Checksum — SHA-256 хэш содержимого файла.
	Checksum string `json:"checksum"`
}

// User — пользователь с правом загрузки файлов.
type User struct {
	// Username — имя пользователя
	Username string `json:"username"`

	// Token — секретный токен (48 случайных байт, base64)
	Token string `json:"token"`
}
