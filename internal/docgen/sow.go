package docgen

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/ankit/closepilot/internal/domain"
)

// consultantName appears opposite the client on the work order header.
const consultantName = "My Company Inc."

// keyAttributesHTML is the static text for section 3, kept out of the
// template for readability.
const keyAttributesHTML = `
<p><strong>(a) Key Attributes</strong></p>
<ul>
    <li>Highly effective resources: Consultant will understand Project requirements and deploy qualified personnel.</li>
    <li>Demonstrate flexibility: Consultant will be flexible in adjusting implementation methods.</li>
</ul>
<p><strong>(b) General Consultant Responsibilities</strong></p>
<ul>
    <li>Comply with and fulfill its responsibilities outlined in this Work Order.</li>
    <li>Assign senior level personnel as a central point of contact.</li>
</ul>
`

// sowTemplate renders the front half of the SOW (sections 1-4 and 9).
// The hidden anchor at the bottom is the tab-placement marker for the
// signature provider and must survive rendering.
const sowTemplate = `<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: 'Helvetica', sans-serif; font-size: 10pt; line-height: 1.4; padding: 40px; }
        .header-block { text-align: center; font-weight: bold; margin-bottom: 30px; border-bottom: 2px solid #333; padding-bottom: 10px; }
        h2 { font-size: 12pt; font-weight: bold; margin-top: 20px; border-bottom: 1px solid #ccc; text-transform: uppercase; }
        .label { font-weight: bold; width: 150px; display: inline-block; }
        .section-content { margin-bottom: 15px; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        th, td { border: 1px solid #000; padding: 6px; vertical-align: top; }
        th { background-color: #f2f2f2; }
        .hidden-anchor { color: #ffffff; font-size: 1px; }
    </style>
</head>
<body>

    <div class="header-block">
        WORK ORDER FOR: {{ .Draft.ProjectName }}<br/>
        {{ .Draft.ClientName }} AND {{ .ConsultantName }}
    </div>

    <h2>1. Project Basics</h2>
    <div><span class="label">Client:</span> {{ .Draft.ClientName }}</div>
    <div><span class="label">Start Date:</span> {{ .Draft.StartDate }}</div>
    <div><span class="label">End Date:</span> {{ .Draft.EndDate }}</div>

    <h2>2. Background &amp; Objectives</h2>
    <div class="section-content">
        <p><strong>Background:</strong> {{ .Draft.BackgroundText }}</p>
        <p><strong>Objectives:</strong> {{ .Draft.ObjectivesText }}</p>
    </div>

    <h2>3. Consultant Key Attributes</h2>
    <div class="section-content">
        {{ .KeyAttributes }}
    </div>

    <h2>4. Scope &amp; Deliverables</h2>
    <div class="section-content">
        <ul>
        {{ range .Draft.ScopeItems }}
            <li><strong>{{ .Title }}:</strong> {{ .Description }}</li>
        {{ end }}
        </ul>
    </div>

    <h2>9. Milestone Obligations</h2>
    <table>
        <thead>
            <tr>
                <th>Milestone</th>
                <th>Description</th>
                <th>Date</th>
                <th>Amount</th>
            </tr>
        </thead>
        <tbody>
            {{ range .Draft.Milestones }}
            <tr>
                <td>{{ .Name }}</td>
                <td>{{ .Description }}</td>
                <td>{{ .Date }}</td>
                <td>{{ .Amount }}</td>
            </tr>
            {{ end }}
        </tbody>
    </table>

    <div style="margin-top:50px;">
        <span class="hidden-anchor">\SIGNATURES\</span>
    </div>

</body>
</html>
`

var parsedTemplate = template.Must(template.New("sow").Parse(sowTemplate))

type templateData struct {
	Draft          *domain.SOWDraft
	ConsultantName string
	KeyAttributes  template.HTML
}

// RenderSOW produces the SOW document body for a validated draft.
func RenderSOW(draft *domain.SOWDraft) ([]byte, error) {
	if draft == nil {
		return nil, fmt.Errorf("docgen: nil draft")
	}

	var buf bytes.Buffer
	err := parsedTemplate.Execute(&buf, templateData{
		Draft:          draft,
		ConsultantName: consultantName,
		KeyAttributes:  template.HTML(keyAttributesHTML),
	})
	if err != nil {
		return nil, fmt.Errorf("docgen: render failed: %w", err)
	}
	return buf.Bytes(), nil
}
