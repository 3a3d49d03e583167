// Package template picks the starter project for a prompt and supplies the
// prompts that steer generation toward the artifact format.
package template

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

// Name identifies a starter template.
type Name string

const (
	React Name = "react"
	Node  Name = "node"
)

const (
	// BasePrompt opens every conversation.
	BasePrompt = "You are an expert web developer assistant."

	reactBasePrompt = "You are building a React application. Generate the necessary files with proper structure."
	nodeBasePrompt  = "You are building a Node.js backend application. Generate the necessary files with proper structure."
)

var (
	//go:embed scaffolds/react.xml
	reactArtifact string

	//go:embed scaffolds/node.xml
	nodeArtifact string
)

// nodeKeywords steer a prompt toward the node template when it does not name one.
var nodeKeywords = []string{
	"node", "backend", "api", "server", "express",
	"database", "mongodb", "postgres", "sql", "rest",
	"graphql", "endpoint", "route", "middleware",
	"authentication", "jwt",
}

// Template is a starter project plus the prompts sent ahead of the user's request.
type Template struct {
	Name Name `json:"name"`
	// Prompts are prepended to the user's prompt for the first generation.
	Prompts []string `json:"prompts"`
	// UIPrompts hold the scaffold artifact shown to the user and ingested first.
	UIPrompts []string `json:"uiPrompts"`
	// BaseArtifact is the scaffold as an artifact.
	BaseArtifact string `json:"-"`
	// Reason explains how the template was chosen.
	Reason string `json:"-"`
}

// Get returns the template with the given name.
func Get(name Name) (Template, error) {
	switch name {
	case React:
		return build(React, reactBasePrompt, reactArtifact), nil
	case Node:
		return build(Node, nodeBasePrompt, nodeArtifact), nil
	default:
		return Template{}, fmt.Errorf("unknown template %q", name)
	}
}

func build(name Name, basePrompt, artifact string) Template {
	intro := fmt.Sprintf("Here is an artifact that contains all files of the project visible to you.\n"+
		"Consider the contents of ALL files in the project.\n\n%s\n\n%s\n\n"+
		"Here is a list of files that exist on the file system but are not being shown to you:\n\n"+
		"  - .gitignore\n  - package-lock.json\n", basePrompt, artifact)

	return Template{
		Name:         name,
		Prompts:      []string{BasePrompt, intro},
		UIPrompts:    []string{artifact},
		BaseArtifact: artifact,
	}
}

// Classify picks a template name for prompt and says why.
// A prompt ending in "node" or "react" names its template explicitly;
// otherwise any node keyword selects node and everything else is react.
func Classify(prompt string) (Name, string) {
	lower := strings.ToLower(strings.TrimSpace(prompt))

	switch {
	case strings.HasSuffix(lower, "node"):
		return Node, "explicit"
	case strings.HasSuffix(lower, "react"):
		return React, "explicit"
	}

	for _, kw := range nodeKeywords {
		if strings.Contains(lower, kw) {
			return Node, "keyword:" + kw
		}
	}
	return React, "default"
}

// Detect returns the template for prompt. An empty prompt is an error.
func Detect(prompt string) (Template, error) {
	if strings.TrimSpace(prompt) == "" {
		return Template{}, errors.New(errors.ErrCodeTemplatePromptRequired, "prompt is required")
	}

	name, reason := Classify(prompt)
	t, err := Get(name)
	if err != nil {
		return Template{}, err
	}
	t.Reason = reason
	return t, nil
}

// SystemPrompt instructs the model to answer with an artifact.
func SystemPrompt() string {
	return `You are an expert full-stack developer. Generate complete, production-ready code based on user requirements.

CRITICAL: You MUST respond with build steps in this EXACT XML format:

<boltArtifact id="project-files" title="Project Files">
  <boltAction type="file" filePath="src/App.tsx">
    <boltActionText>
import React from 'react';

function App() {
  return <h1 className="text-4xl font-bold">Hello World</h1>;
}

export default App;
    </boltActionText>
  </boltAction>
  <boltAction type="shell">
    <boltActionText>npm install</boltActionText>
  </boltAction>
</boltArtifact>

RULES:
1. ALWAYS wrap your entire response in <boltArtifact id="project-files" title="Project Files"> tags
2. Each file MUST be in a <boltAction type="file" filePath="path/to/file"> tag
3. File content MUST go inside <boltActionText> tags and be the COMPLETE file, never a diff
4. Use relative file paths like "src/App.tsx", "src/components/Button.tsx", "package.json"
5. Shell commands go in <boltAction type="shell"> tags, one command line per action
6. Include ALL necessary files: components, package.json, configuration files, etc.
7. DO NOT include explanations outside the XML tags
8. Make sure code is complete and functional`
}
