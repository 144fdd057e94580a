package server

// Request payloads. Responses reuse the domain structs, which carry JSON
// tags already.

type CreatePersonaRequest struct {
	TemplateID         string  `json:"template_id,omitempty"`
	TemplateName       *string `json:"template_name,omitempty"`
	CustomName         *string `json:"custom_name,omitempty"`
	CustomInstructions *string `json:"custom_instructions,omitempty"`
}

type UpdatePersonaRequest struct {
	CustomName         *string `json:"custom_name,omitempty"`
	CustomInstructions *string `json:"custom_instructions,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

type RecordActivityRequest struct {
	Kind        string         `json:"kind"`
	TaskID      *string        `json:"task_id,omitempty"`
	TaskSize    string         `json:"task_size,omitempty" enum:"small,standard"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type AdjustScoreRequest struct {
	ProfessionalismDelta float64 `json:"professionalism_delta"`
	QualityDelta         float64 `json:"quality_delta"`
	Reason               string  `json:"reason"`
}

type RecordActionRequest struct {
	Kind        string         `json:"kind"`
	Category    string         `json:"category"`
	TaskID      *string        `json:"task_id,omitempty"`
	ActivityID  *string        `json:"activity_id,omitempty"`
	ToolName    *string        `json:"tool_name,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
}

type CompleteActionRequest struct {
	ResultStatus    string `json:"result_status" enum:"success,failure,partial,cancelled"`
	ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty"`
}

type AttachArtifactRequest struct {
	Type          string         `json:"type" enum:"file_change,command_output,git_diff,api_response,test_result,build_artifact"`
	FilePath      *string        `json:"file_path,omitempty"`
	ContentBefore *string        `json:"content_before,omitempty"`
	ContentAfter  *string        `json:"content_after,omitempty"`
	GitHash       *string        `json:"git_hash,omitempty"`
	Output        map[string]any `json:"output,omitempty"`
	SizeBytes     *int64         `json:"size_bytes,omitempty"`
}

type CreateTaskRequest struct {
	Title             string  `json:"title"`
	Description       *string `json:"description,omitempty"`
	AssignedPersonaID *string `json:"assigned_persona_id,omitempty"`
}

type UpdateTaskRequest struct {
	Status            *string `json:"status,omitempty" enum:"todo,inprogress,inreview,done,cancelled"`
	AssignedPersonaID *string `json:"assigned_persona_id,omitempty"`
}

type CreateAttemptRequest struct {
	Executor *string `json:"executor,omitempty"`
}

type SetMergeCommitRequest struct {
	MergeCommit string `json:"merge_commit"`
}

type CreateProcessRequest struct {
	Type   string `json:"type" enum:"setupscript,cleanupscript,codingagent,devserver"`
	Status string `json:"status,omitempty" enum:"running,completed,failed,killed"`
}

type UpdateProcessRequest struct {
	Status string `json:"status" enum:"running,completed,failed,killed"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Key     string `json:"key"`
}
