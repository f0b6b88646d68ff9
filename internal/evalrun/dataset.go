package evalrun

// DefaultDataset is a small fixed benchmark: questions with well-documented
// answers, paired with keywords a good report should surface. It measures
// recall (did the agent find the key facts), not precision.
var DefaultDataset = []Question{
	{
		Question:         "What are the major breakthroughs in solid-state battery technology in 2023 and 2024?",
		Category:         "technology",
		ExpectedKeywords: []string{"solid-state", "electrolyte", "energy density", "lithium", "QuantumScape"},
	},
	{
		Question:         "What caused the 2008 global financial crisis?",
		Category:         "economics",
		ExpectedKeywords: []string{"subprime", "mortgage", "Lehman Brothers", "housing", "credit"},
	},
	{
		Question:         "How does CRISPR-Cas9 gene editing work and what are its main limitations?",
		Category:         "science",
		ExpectedKeywords: []string{"CRISPR", "Cas9", "DNA", "guide RNA", "off-target"},
	},
	{
		Question:         "What are the key differences between supervised and unsupervised machine learning?",
		Category:         "AI",
		ExpectedKeywords: []string{"supervised", "unsupervised", "label", "clustering", "classification"},
	},
	{
		Question:         "What are the main effects of climate change on global food security?",
		Category:         "environment",
		ExpectedKeywords: []string{"crop", "drought", "food security", "temperature", "yield"},
	},
}
