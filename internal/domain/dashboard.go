package domain

type UnifiedDashboard struct {
	Activity  ExamActivityStats `json:"activity"`  // Поток попыток и событий
	Integrity IntegrityStats    `json:"integrity"` // Нарушения и санкции
	Outcomes  OutcomeStats      `json:"outcomes"`  // Результаты сдачи
	Media     MediaStats        `json:"media"`     // Объем снапшотов
}

type ExamActivityStats struct {
	ActiveAttempts int64 `json:"active_attempts"`
	TotalAttempts  int64 `json:"total_attempts"`
	EventsLastHour int64 `json:"events_last_hour"`
}

type IntegrityStats struct {
	FlaggedAttempts    int64 `json:"flagged_attempts"`     // Ждут ручного разбора
	TerminatedAttempts int64 `json:"terminated_attempts"`  // Остановлены ревьюером
	Disqualifications  int64 `json:"disqualifications"`    // Автоматические, по порогу
	ViolationsLastHour int64 `json:"violations_last_hour"` // Сработки категорийных счетчиков
}

type OutcomeStats struct {
	Completed int64   `json:"completed"`
	PassRate  float64 `json:"pass_rate"`
	AvgScore  float64 `json:"avg_score"`
}

type MediaStats struct {
	SnapshotCount int64 `json:"snapshot_count"`
	SnapshotBytes int64 `json:"snapshot_bytes"`
}
