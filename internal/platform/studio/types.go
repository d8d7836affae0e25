package studio

import (
	"encoding/json"
	"strings"
)

// JobState is the vendor-side state of a generation job.
type JobState string

// Known vendor job states
const (
	JobStatePending   JobState = "PENDING"
	JobStateRunning   JobState = "RUNNING"
	JobStateSubmitted JobState = "SUBMITTED"
	JobStateSuccess   JobState = "SUCCESS"
	JobStateFail      JobState = "FAIL"
)

// Active reports whether the vendor is still working on the job.
func (s JobState) Active() bool {
	return s == JobStatePending || s == JobStateRunning || s == JobStateSubmitted
}

// Job is one entry of the recent-jobs listing.
type Job struct {
	ID        string
	State     JobState
	ResultURL string
}

// Credential is a tenant account used to open a session.
type Credential struct {
	Email  string
	Secret string
}

// SubmitKind selects the submission endpoint.
type SubmitKind string

// Submission endpoints
const (
	KindTextToImage  SubmitKind = "text-to-image"
	KindImageToVideo SubmitKind = "image-to-video"
	KindTextToVideo  SubmitKind = "text-to-video"
)

// SubmitRequest is a generation job submission. Body is encoded as JSON.
type SubmitRequest struct {
	Kind SubmitKind
	Body any
}

// ImageJob is the body of a text-to-image submission.
type ImageJob struct {
	Prompt       string   `json:"prompt"`
	ImageSize    string   `json:"imageSize"`
	Count        int      `json:"count"`
	ModelType    string   `json:"modelType"`
	ModelVersion string   `json:"modelVersion"`
	Resolution   string   `json:"resolution,omitempty"`
	UserImageIDs []string `json:"userImageIds,omitempty"`
}

// VideoJob is the body of a text-to-video or image-to-video submission.
type VideoJob struct {
	Prompt          string `json:"prompt"`
	Resolution      string `json:"resolution"`
	LengthOfSecond  int    `json:"lengthOfSecond"`
	AIPromptEnhance bool   `json:"aiPromptEnhance"`
	Size            string `json:"size"`
	AddEndFrame     bool   `json:"addEndFrame"`
	ModelType       string `json:"modelType,omitempty"`
	ModelVersion    string `json:"modelVersion,omitempty"`
	UserImageID     int64  `json:"userImageId,omitempty"`
}

// flexString decodes a JSON string or number into its string form. The
// vendor returns ids as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexURL decodes either a URL string or a list of URL strings, keeping the first.
type flexURL string

func (f *flexURL) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		if len(list) > 0 {
			*f = flexURL(list[0])
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// the vendor occasionally sends objects here; treat as absent
		return nil
	}
	*f = flexURL(s)
	return nil
}

type envelope struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}

type submitData struct {
	Data struct {
		TaskID flexString `json:"taskId"`
	} `json:"data"`
}

type uploadData struct {
	Data struct {
		ID flexString `json:"id"`
	} `json:"data"`
}

type assetsData struct {
	Data struct {
		Groups []struct {
			Items []struct {
				Detail struct {
					Creation struct {
						TaskID    flexString `json:"taskId"`
						TaskState string     `json:"taskState"`
						ImageURL  flexURL    `json:"noWaterMarkImageUrl"`
					} `json:"creation"`
				} `json:"detail"`
			} `json:"items"`
		} `json:"groups"`
	} `json:"data"`
}

type videoTask struct {
	TaskID      flexString `json:"taskId"`
	TaskState   string     `json:"taskState"`
	VideoURL    flexURL    `json:"noWaterMarkVideoUrl"`
	VideoURLAlt flexURL    `json:"noWatermarkVideoUrl"`
}

// videoTasksData accepts both {"data":{"data":[...]}} and {"data":[...]}
// under the envelope's data field.
type videoTasksData struct {
	Tasks []videoTask
}

func (v *videoTasksData) UnmarshalJSON(b []byte) error {
	var nested struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &nested); err != nil {
		return err
	}
	if len(nested.Data) == 0 {
		return nil
	}

	trimmed := strings.TrimSpace(string(nested.Data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(nested.Data, &v.Tasks)
	}

	var inner struct {
		Data []videoTask `json:"data"`
	}
	if err := json.Unmarshal(nested.Data, &inner); err != nil {
		return err
	}
	v.Tasks = inner.Data
	return nil
}
