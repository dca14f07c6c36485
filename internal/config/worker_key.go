package config

type WorkerKeyStruct struct {
	PersistSessionsQueue   string
	PersistWarningsQueue   string
	PersistAnswersQueue    string
	PersistRecordingsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSessionsQueue:   "persist_sessions_queue",
	PersistWarningsQueue:   "persist_warnings_queue",
	PersistAnswersQueue:    "persist_answers_queue",
	PersistRecordingsQueue: "persist_recordings_queue",
}

// Queues lists every persistence queue, used for depth reporting.
func (w *WorkerKeyStruct) Queues() []string {
	return []string{
		w.PersistSessionsQueue,
		w.PersistWarningsQueue,
		w.PersistAnswersQueue,
		w.PersistRecordingsQueue,
	}
}
