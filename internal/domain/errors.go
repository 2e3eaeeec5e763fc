package domain

import "errors"

var (
	// ErrSessionNotFound возвращается, если сессии нет в хранилище.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoryNotFound возвращается, если новости нет в каталоге.
	ErrStoryNotFound = errors.New("story not found")
	// ErrSessionCompleted возвращается при попытке изменить завершённую сессию.
	ErrSessionCompleted = errors.New("session completed")
	// ErrVersionConflict сигнализирует о параллельном изменении сессии.
	ErrVersionConflict = errors.New("session version conflict")
	// ErrEmptyQueue — у пользователя нет новостей для брифинга.
	ErrEmptyQueue = errors.New("no stories for briefing")
	// ErrInvalidTransition — переход запрещён конечным автоматом.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnknownCommand — неизвестная команда управления.
	ErrUnknownCommand = errors.New("unknown control command")
	// ErrCollaboratorUnavailable — внешний сервис (TTS, LLM, хранилище) недоступен.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrAudioNotFound — аудиофайл не найден.
	ErrAudioNotFound = errors.New("audio asset not found")
)
