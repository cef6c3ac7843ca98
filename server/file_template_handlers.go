package server

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

// CallbackSuccessData is rendered after a provider sign-in issued a verification code.
type CallbackSuccessData struct {
	VerificationCode string
	ProviderName     string
}

// CallbackErrorData is rendered for every failed sign-in. It deliberately carries
// nothing about the cause.
type CallbackErrorData struct {
	ProviderName string
}
