// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates holds the templ components for the outbound emails and
// the browser landing pages.
package templates

// ResultData feeds the landing page shown after a link was followed.
type ResultData struct {
	Success bool
	Title   string
	Body    string
}

// ResetFormData feeds the password reset form.
type ResetFormData struct {
	Token     string
	MinLength int
	Error     string
}
