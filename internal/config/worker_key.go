package config

type WorkerKeyStruct struct {
	PersistAnswersQueue       string
	PersistResultsQueue       string
	PersistIntegrityQueue     string
	PersistQuestionOrderQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:       "persist_answers_queue",
	PersistResultsQueue:       "persist_results_queue",
	PersistIntegrityQueue:     "persist_integrity_queue",
	PersistQuestionOrderQueue: "persist_question_order_queue",
}
