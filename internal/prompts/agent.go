package prompts

// Prompt IDs used by the task providers.
const (
	StartGoal   = "start_goal"
	CreateTasks = "create_tasks"
	ExecuteTask = "execute_task"
)

func init() {
	registry := Default()

	registry.MustRegister(&Prompt{
		ID:      StartGoal,
		Version: PromptV1,
		Content: `You are an autonomous task creation AI called AutoGoal.
You have the following objective: "{{goal}}".
Create a list of zero to three tasks to be completed by your AI system such that your goal is more closely reached or completely reached.
Write every task in {{language}}.
Return the response as a JSON array of strings and nothing else, for example: ["first task", "second task"]`,
		Description: "Bootstrap: turn a goal into the initial task list",
	})

	registry.MustRegister(&Prompt{
		ID:      CreateTasks,
		Version: PromptV1,
		Content: `You are an AI task creation agent. You have the following objective: "{{goal}}".
You have the following incomplete tasks: {{tasks}}.
You have already completed: {{completed}}.
You just completed the task "{{last_task}}" and received this result:
{{result}}

Based on this, create new tasks to be completed by your AI system ONLY IF NEEDED such that your goal is more closely reached or completely reached.
Do not repeat tasks that are incomplete or already completed.
Write every task in {{language}}.
Return the response as a JSON array of strings and nothing else. Return [] when no new task is needed.`,
		Description: "Expansion: follow-on tasks after one result",
	})

	registry.MustRegister(&Prompt{
		ID:      ExecuteTask,
		Version: PromptV1,
		Content: `You are an autonomous task execution AI called AutoGoal.
You have the following objective: "{{goal}}".
You have the following task: "{{task}}".
Execute the task and return the response as a string, written in {{language}}.`,
		Description: "Execution: produce the result text of one task",
	})
}
