// Package studio is the HTTP client for the image and video generation
// vendor. A session is a bearer token obtained by authenticating one tenant
// credential; with it the client uploads reference images, submits
// generation jobs and lists the account's recent jobs.
//
// Submission errors come in two kinds. A *RejectedError means the vendor
// answered and refused the job. Any other error means the outcome is
// unknown: the job may or may not exist on the vendor side.
package studio
