package clockify

// NamedResource is the hydrated task/project shape embedded in a time entry.
type NamedResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TimeInterval carries the entry timestamps. Duration is an ISO-8601 token
// ("PT1H30M") and is absent for running entries.
type TimeInterval struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration string `json:"duration"`
}

// TimeEntry is a single raw record from the time-entries API.
type TimeEntry struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Task         *NamedResource `json:"task"`
	Project      *NamedResource `json:"project"`
	TimeInterval *TimeInterval  `json:"timeInterval"`
}

// TaskName returns the task name, or the empty string when no task is set.
func (e TimeEntry) TaskName() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.Name
}

// ProjectName returns the project name, or the empty string when no project is set.
func (e TimeEntry) ProjectName() string {
	if e.Project == nil {
		return ""
	}
	return e.Project.Name
}

// Start returns the raw start timestamp, or the empty string when the
// interval is missing.
func (e TimeEntry) Start() string {
	if e.TimeInterval == nil {
		return ""
	}
	return e.TimeInterval.Start
}

// RawDuration returns the raw duration token, or the empty string when the
// interval or duration is missing.
func (e TimeEntry) RawDuration() string {
	if e.TimeInterval == nil {
		return ""
	}
	return e.TimeInterval.Duration
}

// UserInfo is the subset of the /user response the CLI surfaces.
type UserInfo struct {
	ID               string `json:"id"`
	ActiveWorkspace  string `json:"activeWorkspace"`
	DefaultWorkspace string `json:"defaultWorkspace"`
}
