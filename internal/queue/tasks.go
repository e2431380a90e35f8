package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/pixelnote/internal/domain"
)

const TypeCommitImage = "image:commit"

func NewCommitImageTask(commit domain.ImageCommit) (*asynq.Task, error) {
	body, err := json.Marshal(commit)
	if err != nil {
		return nil, fmt.Errorf("marshal commit payload: %w", err)
	}
	return asynq.NewTask(TypeCommitImage, body), nil
}

func ParseCommitImagePayload(task *asynq.Task) (domain.ImageCommit, error) {
	var commit domain.ImageCommit
	if err := json.Unmarshal(task.Payload(), &commit); err != nil {
		return domain.ImageCommit{}, fmt.Errorf("unmarshal commit payload: %w", err)
	}
	if commit.NoteID == "" {
		return domain.ImageCommit{}, fmt.Errorf("commit payload is missing note_id")
	}
	return commit, nil
}
