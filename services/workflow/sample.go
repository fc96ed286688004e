package workflow

// SampleWorkflowID identifies the seeded patient intake workflow.
const SampleWorkflowID = "patient-intake"

// SampleDefinition returns the patient intake checklist used to seed empty stores.
func SampleDefinition() *Definition {
	return &Definition{
		ID:              SampleWorkflowID,
		Name:            "Patient Intake",
		Category:        "clinical",
		ComplianceLevel: ComplianceEnhanced,
		Nodes: []Node{
			{
				ID: "start", Kind: NodeStart, Label: "Start",
				Description: "Patient arrives", Priority: PriorityLow,
				Position: Position{X: -160, Y: 300},
			},
			{
				ID: "intake", Kind: NodeProcess, Label: "Registration",
				Description: "Collect name and date of birth", Category: "administrative",
				Priority: PriorityHigh, EstimatedDurationSeconds: 300,
				Position: Position{X: 150, Y: 300},
			},
			{
				ID: "consent", Kind: NodeData, Label: "Consent Form",
				Description: "Signed treatment consent", Category: "legal",
				Priority: PriorityCritical, EstimatedDurationSeconds: 120,
				Position: Position{X: 450, Y: 300},
			},
			{
				ID: "triage", Kind: NodeDecision, Label: "Triage Assessment",
				Description: "Assign severity 1-5", Category: "clinical",
				Priority: PriorityCritical, EstimatedDurationSeconds: 600,
				Position: Position{X: 750, Y: 300},
			},
			{
				ID: "treatment", Kind: NodeProcess, Label: "Treatment",
				Description: "Administer treatment plan", Category: "clinical",
				Priority: PriorityCritical, EstimatedDurationSeconds: 1800,
				Position: Position{X: 1050, Y: 100},
			},
			{
				ID: "review", Kind: NodeProcess, Label: "Clinical Review",
				Description: "Senior clinician sign-off", Category: "clinical",
				Priority: PriorityHigh, EstimatedDurationSeconds: 600,
				Position: Position{X: 1350, Y: 300},
			},
			{
				ID: "discharge", Kind: NodeEnd, Label: "Discharge",
				Description: "Patient discharged", Priority: PriorityMedium,
				Position: Position{X: 1650, Y: 300},
			},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "intake", Kind: EdgeDefault, Label: "Begin"},
			{ID: "e2", Source: "intake", Target: "consent", Kind: EdgeDataflow, Label: "Registered",
				RequiresValidation: true, ValidationCriteria: []string{"fields:$.intake name,dob"}},
			{ID: "e3", Source: "consent", Target: "triage", Kind: EdgeConditional, Label: "Consent given",
				Condition: "consent.signed", RequiresValidation: true, ValidationCriteria: []string{"present:$.consent.signed"}},
			{ID: "e4", Source: "triage", Target: "treatment", Kind: EdgeConditional, Label: "Needs treatment",
				Condition: "severity >= 3", RequiresValidation: true,
				ValidationCriteria: []string{"threshold:$.triage.severity greater_than_or_equal 3"}},
			{ID: "e5", Source: "triage", Target: "review", Kind: EdgeConditional, Label: "Observation only",
				Condition: "severity < 3", RequiresValidation: true,
				ValidationCriteria: []string{"threshold:$.triage.severity less_than 3"}},
			{ID: "e6", Source: "treatment", Target: "review", Kind: EdgeDefault, Label: "Treated"},
			{ID: "e7", Source: "review", Target: "treatment", Kind: EdgeFeedback, Label: "Rework"},
			{ID: "e8", Source: "review", Target: "discharge", Kind: EdgeConditional, Label: "Approved",
				RequiresValidation: true, ValidationCriteria: []string{"js:$.review.approved === true"}},
		},
	}
}
