package domain

// ActivityKind is the closed set of rule-scored persona events.
type ActivityKind string

const (
	ActivityTaskAssigned     ActivityKind = "task_assigned"
	ActivityTaskCompleted    ActivityKind = "task_completed"
	ActivityTaskFailed       ActivityKind = "task_failed"
	ActivityKudosReceived    ActivityKind = "kudos_received"
	ActivityWtfReceived      ActivityKind = "wtf_received"
	ActivityProcessViolation ActivityKind = "process_violation"
	ActivityQualityIssue     ActivityKind = "quality_issue"
	ActivityImported         ActivityKind = "imported"
	ActivityScoreAdjustment  ActivityKind = "score_adjustment"
	ActivityDelegation       ActivityKind = "delegation"
	ActivityPeerReview       ActivityKind = "peer_review"
)

// ActivityKinds lists every valid activity kind.
var ActivityKinds = []ActivityKind{
	ActivityTaskAssigned, ActivityTaskCompleted, ActivityTaskFailed,
	ActivityKudosReceived, ActivityWtfReceived, ActivityProcessViolation,
	ActivityQualityIssue, ActivityImported, ActivityScoreAdjustment,
	ActivityDelegation, ActivityPeerReview,
}

func (k ActivityKind) Valid() bool {
	for _, v := range ActivityKinds {
		if k == v {
			return true
		}
	}
	return false
}

type ActionKind string

const (
	ActionFileRead      ActionKind = "file_read"
	ActionFileWrite     ActionKind = "file_write"
	ActionFileEdit      ActionKind = "file_edit"
	ActionFileDelete    ActionKind = "file_delete"
	ActionBashCommand   ActionKind = "bash_command"
	ActionGitCommit     ActionKind = "git_commit"
	ActionGitBranch     ActionKind = "git_branch"
	ActionGitPR         ActionKind = "git_pr"
	ActionSearchQuery   ActionKind = "search_query"
	ActionAPICall       ActionKind = "api_call"
	ActionTaskAssigned  ActionKind = "task_assigned"
	ActionTaskStarted   ActionKind = "task_started"
	ActionTaskCompleted ActionKind = "task_completed"
	ActionTaskDelegated ActionKind = "task_delegated"
	ActionKudosGiven    ActionKind = "kudos_given"
	ActionWtfIssued     ActionKind = "wtf_issued"
	ActionPeerReview    ActionKind = "peer_review"
	ActionCollaboration ActionKind = "collaboration"
	ActionTestsRun      ActionKind = "tests_run"
	ActionBuildExecuted ActionKind = "build_executed"
)

var ActionKinds = []ActionKind{
	ActionFileRead, ActionFileWrite, ActionFileEdit, ActionFileDelete,
	ActionBashCommand, ActionGitCommit, ActionGitBranch, ActionGitPR,
	ActionSearchQuery, ActionAPICall, ActionTaskAssigned, ActionTaskStarted,
	ActionTaskCompleted, ActionTaskDelegated, ActionKudosGiven,
	ActionWtfIssued, ActionPeerReview, ActionCollaboration, ActionTestsRun,
	ActionBuildExecuted,
}

func (k ActionKind) Valid() bool {
	for _, v := range ActionKinds {
		if k == v {
			return true
		}
	}
	return false
}

type ActionCategory string

const (
	CategoryFileOperation   ActionCategory = "file_operation"
	CategoryToolUsage       ActionCategory = "tool_usage"
	CategoryTaskManagement  ActionCategory = "task_management"
	CategoryTeamInteraction ActionCategory = "team_interaction"
	CategoryProcessAction   ActionCategory = "process_action"
	CategoryGitOperation    ActionCategory = "git_operation"
)

var ActionCategories = []ActionCategory{
	CategoryFileOperation, CategoryToolUsage, CategoryTaskManagement,
	CategoryTeamInteraction, CategoryProcessAction, CategoryGitOperation,
}

func (c ActionCategory) Valid() bool {
	for _, v := range ActionCategories {
		if c == v {
			return true
		}
	}
	return false
}

type ResultStatus string

const (
	ResultSuccess   ResultStatus = "success"
	ResultFailure   ResultStatus = "failure"
	ResultPartial   ResultStatus = "partial"
	ResultCancelled ResultStatus = "cancelled"
)

func (s ResultStatus) Valid() bool {
	switch s {
	case ResultSuccess, ResultFailure, ResultPartial, ResultCancelled:
		return true
	}
	return false
}

type ArtifactType string

const (
	ArtifactFileChange    ArtifactType = "file_change"
	ArtifactCommandOutput ArtifactType = "command_output"
	ArtifactGitDiff       ArtifactType = "git_diff"
	ArtifactAPIResponse   ArtifactType = "api_response"
	ArtifactTestResult    ArtifactType = "test_result"
	ArtifactBuildArtifact ArtifactType = "build_artifact"
)

func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactFileChange, ArtifactCommandOutput, ArtifactGitDiff,
		ArtifactAPIResponse, ArtifactTestResult, ArtifactBuildArtifact:
		return true
	}
	return false
}

type TaskSize string

const (
	SizeSmall    TaskSize = "small"
	SizeStandard TaskSize = "standard"
)

func (s TaskSize) Valid() bool {
	return s == SizeSmall || s == SizeStandard
}

// ProcessType tags one execution phase of a task attempt. Only setupscript,
// cleanupscript and codingagent phases count toward derived task status;
// devserver processes are long-lived side processes and are ignored there.
type ProcessType string

const (
	ProcessSetupScript   ProcessType = "setupscript"
	ProcessCleanupScript ProcessType = "cleanupscript"
	ProcessCodingAgent   ProcessType = "codingagent"
	ProcessDevServer     ProcessType = "devserver"
)

func (t ProcessType) Valid() bool {
	switch t {
	case ProcessSetupScript, ProcessCleanupScript, ProcessCodingAgent, ProcessDevServer:
		return true
	}
	return false
}

// CountsTowardStatus reports whether processes of this type participate in
// derived task status.
func (t ProcessType) CountsTowardStatus() bool {
	switch t {
	case ProcessSetupScript, ProcessCleanupScript, ProcessCodingAgent:
		return true
	}
	return false
}

type ProcessStatus string

const (
	ProcessRunning   ProcessStatus = "running"
	ProcessCompleted ProcessStatus = "completed"
	ProcessFailed    ProcessStatus = "failed"
	ProcessKilled    ProcessStatus = "killed"
)

func (s ProcessStatus) Valid() bool {
	switch s {
	case ProcessRunning, ProcessCompleted, ProcessFailed, ProcessKilled:
		return true
	}
	return false
}

// Terminal reports whether the process has finished, in any way.
func (s ProcessStatus) Terminal() bool {
	return s != ProcessRunning
}

type RoleType string

const (
	RolePM                   RoleType = "pm"
	RoleRequirementsEngineer RoleType = "requirements_engineer"
	RoleArchitect            RoleType = "architect"
	RoleDeveloper            RoleType = "developer"
	RoleQAEngineer           RoleType = "qa_engineer"
	RoleDevopsEngineer       RoleType = "devops_engineer"
	RoleSecurityEngineer     RoleType = "security_engineer"
	RoleAIEngineer           RoleType = "ai_engineer"
	RoleSpecialist           RoleType = "specialist"
)

type PersonaTemplate struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	RoleType            RoleType `json:"role_type"`
	DefaultInstructions string   `json:"default_instructions,omitempty"`
	Description         string   `json:"description,omitempty"`
	KudosQuotaDaily     int64    `json:"kudos_quota_daily"`
	IsSystem            bool     `json:"is_system"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

type Persona struct {
	ID                    string  `json:"id"`
	ProjectID             string  `json:"project_id"`
	TemplateID            string  `json:"template_id"`
	CustomName            *string `json:"custom_name,omitempty"`
	CustomInstructions    *string `json:"custom_instructions,omitempty"`
	IsActive              bool    `json:"is_active"`
	ProfessionalismScore  float64 `json:"professionalism_score"`
	QualityScore          float64 `json:"quality_score"`
	KudosQuotaUsed        int64   `json:"kudos_quota_used"`
	WtfQuotaUsed          int64   `json:"wtf_quota_used"`
	LastQuotaReset        string  `json:"last_quota_reset" format:"date-time"`
	ImportedFromProjectID *string `json:"imported_from_project_id,omitempty"`
	ImportedAt            *string `json:"imported_at,omitempty" format:"date-time"`
	CreatedAt             string  `json:"created_at" format:"date-time"`
	UpdatedAt             string  `json:"updated_at" format:"date-time"`
}

type Activity struct {
	ID                   string       `json:"id"`
	PersonaID            string       `json:"persona_id"`
	TaskID               *string      `json:"task_id,omitempty"`
	Kind                 ActivityKind `json:"kind"`
	Description          string       `json:"description"`
	ProfessionalismDelta float64      `json:"professionalism_change"`
	QualityDelta         float64      `json:"quality_change"`
	TaskSize             TaskSize     `json:"task_size"`
	MetadataJSON         *string      `json:"metadata_json,omitempty"`
	CreatedAt            string       `json:"created_at" format:"date-time"`
}

type Action struct {
	ID              string         `json:"id"`
	PersonaID       string         `json:"persona_id"`
	TaskID          *string        `json:"task_id,omitempty"`
	ActivityID      *string        `json:"activity_id,omitempty"`
	Kind            ActionKind     `json:"kind"`
	Category        ActionCategory `json:"category"`
	ToolName        *string        `json:"tool_name,omitempty"`
	ParametersJSON  *string        `json:"parameters_json,omitempty"`
	ResultStatus    ResultStatus   `json:"result_status"`
	ExecutionTimeMs *int64         `json:"execution_time_ms,omitempty"`
	Description     string         `json:"description"`
	CreatedAt       string         `json:"created_at" format:"date-time"`
}

type Artifact struct {
	ID            string       `json:"id"`
	ActionID      string       `json:"action_id"`
	Type          ArtifactType `json:"type"`
	FilePath      *string      `json:"file_path,omitempty"`
	ContentBefore *string      `json:"content_before,omitempty"`
	ContentAfter  *string      `json:"content_after,omitempty"`
	GitHash       *string      `json:"git_hash,omitempty"`
	OutputJSON    *string      `json:"output_json,omitempty"`
	SizeBytes     *int64       `json:"size_bytes,omitempty"`
	CreatedAt     string       `json:"created_at" format:"date-time"`
}

// ActionWithArtifacts is an action joined with its evidence, artifacts in
// chronological order.
type ActionWithArtifacts struct {
	Action
	Artifacts []Artifact `json:"artifacts"`
}

type Task struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Status            string  `json:"status" enum:"todo,inprogress,inreview,done,cancelled"`
	AssignedPersonaID *string `json:"assigned_persona_id,omitempty"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type TaskAttempt struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	Executor    *string `json:"executor,omitempty"`
	MergeCommit *string `json:"merge_commit,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type ExecutionProcess struct {
	ID        string        `json:"id"`
	AttemptID string        `json:"attempt_id"`
	Type      ProcessType   `json:"type"`
	Status    ProcessStatus `json:"status"`
	CreatedAt string        `json:"created_at" format:"date-time"`
}

// DerivedStatus is the classification overlay computed from attempt and
// process history on every read, never stored.
type DerivedStatus struct {
	InProgress            bool    `json:"has_in_progress_attempt"`
	Merged                bool    `json:"has_merged_attempt"`
	LastAttemptFailed     bool    `json:"last_attempt_failed"`
	LatestAttemptExecutor *string `json:"latest_attempt_executor,omitempty"`
}

// TaskWithStatus is a task augmented with its derived status overlay.
type TaskWithStatus struct {
	Task
	DerivedStatus
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
