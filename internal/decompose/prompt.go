package decompose

// decompositionPrompt is the prompt template for goal decomposition.
const decompositionPrompt = `Break this goal into subtasks for specialist agents. Each task should be sized for a single agent to complete.

Goal:
%s

Return ONLY a JSON array of tasks with this exact structure (no other text):
[
  {
    "description": "Detailed task description",
    "role": "planner|coder|reviewer|researcher|tester",
    "dependencies": [0, 1]
  }
]

Rules:
- "role" must be one of: planner, coder, reviewer, researcher, tester
- "dependencies" lists the 0-based positions of tasks that must complete first
- Use an empty array [] when a task has no dependencies
- Tasks should be as independent as possible to allow parallel execution
- Only add a dependency when one task truly needs another's output
- Never create circular dependencies
- Typical shape: planning and research first, implementation in the middle,
  review and testing last`
