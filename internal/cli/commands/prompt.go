package commands

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// questionsFor builds one prompt per attribute of meta, preceded by the
// identifier when the application assigns it. Bool attributes are confirmed,
// everything else is typed in and coerced later.
func questionsFor(meta *schema.EntityMetadata) []*survey.Question {
	var qs []*survey.Question

	if meta.Identifier != nil && meta.Strategy == schema.Assigned {
		qs = append(qs, &survey.Question{
			Name:     meta.Identifier.Name,
			Prompt:   &survey.Input{Message: fmt.Sprintf("%s (%s):", meta.Identifier.Name, meta.Identifier.Type)},
			Validate: survey.Required,
		})
	}

	for _, attr := range meta.Attributes {
		q := &survey.Question{Name: attr.Name}
		switch {
		case attr.Type == schema.TypeBool:
			def, _ := attr.DefaultValue().(bool)
			q.Prompt = &survey.Confirm{Message: attr.Name + "?", Default: def}
		case attr.IsAssociation():
			q.Prompt = &survey.Input{Message: fmt.Sprintf("%s (%s id):", attr.Name, attr.Target)}
		default:
			input := &survey.Input{Message: fmt.Sprintf("%s (%s):", attr.Name, attr.Type)}
			if attr.Default != nil {
				input.Default = fmt.Sprint(attr.Default)
			}
			q.Prompt = input
		}
		if !attr.Nullable && !attr.IsAssociation() && attr.Type != schema.TypeBool {
			q.Validate = survey.Required
		}
		qs = append(qs, q)
	}
	return qs
}

// askObject prompts for one instance. Blank answers become null.
func askObject(meta *schema.EntityMetadata, opts ...survey.AskOpt) (map[string]interface{}, error) {
	answers := make(map[string]interface{})
	if err := survey.Ask(questionsFor(meta), &answers, opts...); err != nil {
		return nil, err
	}
	return normalizeAnswers(answers), nil
}

func normalizeAnswers(answers map[string]interface{}) map[string]interface{} {
	for k, v := range answers {
		if s, ok := v.(string); ok && s == "" {
			answers[k] = nil
		}
	}
	return answers
}
