package controllers

type CreateJobRequest struct {
	ManifestURL string `json:"manifest_url"`
	OutputName  string `json:"output_name"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
