package prompt

import "github.com/vbonduro/screensolve/internal/domain"

const baseIntro = "You are an expert coding assistant. "

var templates = map[domain.Category]string{
	domain.CategoryCoding: `Examine the screenshots of a programming problem and solve it.

Instructions:
1. Analyze the problem shown in the screenshots in detail
2. Provide a step-by-step approach to solving the problem
3. Include time and space complexity analysis
4. Implement an efficient solution in the language shown in the problem
5. Use the EXACT function signature/template as provided in the problem
6. Do not add extra type hints or modify the signature
7. Add detailed comments explaining your solution
8. Provide a walkthrough of your solution with at least one example
9. Discuss any optimization techniques or potential edge cases

Your solution should be complete and ready to submit.`,

	domain.CategoryDebugging: `Examine the error/issue in the screenshots and provide a solution.

Instructions:
1. Identify the specific error or issue shown in the screenshots
2. Explain the root cause of the problem in detail
3. Provide a complete solution or fix for the issue
4. Include corrected code that resolves the problem
5. Explain your changes and why they fix the issue
6. Add defensive coding suggestions to prevent similar errors
7. If relevant, suggest optimizations or improvements beyond just fixing the error

Your explanation should be detailed enough for someone to understand both the problem and solution.`,

	domain.CategoryMultipleChoice: `Analyze the multiple choice question in the screenshots and determine the correct answer.

Instructions:
1. Identify the specific question being asked
2. Analyze each of the provided options thoroughly
3. Explain the reasoning behind why each incorrect option is wrong
4. Provide a detailed explanation of why the correct option is right
5. CLEARLY state your final answer (e.g., "The correct answer is option C")
6. If applicable, include any relevant examples, definitions or context
7. For history/science/other factual questions, explain the factual background

Your answer should be confident and well-justified with clear reasoning.`,

	domain.CategorySystemDesign: `Analyze the system design problem shown in the screenshots and provide a comprehensive solution.

Instructions:
1. Understand the requirements and constraints of the system
2. Outline a high-level architecture with key components
3. Detail the data models and database schema if relevant
4. Explain API designs and communication patterns between components
5. Discuss scalability considerations and potential bottlenecks
6. Address security, reliability, and maintenance concerns
7. Provide diagrams or pseudo-code where helpful
8. Consider trade-offs in your design and explain your choices

Your solution should be comprehensive while being practical to implement.`,
}

const generalTemplate = `Examine the screenshots and provide a detailed analysis and solution.

Instructions:
1. First, identify the type of problem or question being asked
2. Analyze the content thoroughly and methodically
3. Provide a clear, structured response that directly addresses the problem
4. Include code, diagrams, or step-by-step instructions as needed
5. Ensure your solution is complete and correct
6. Explain your reasoning and any assumptions you made

Your response should be well-structured with markdown headings and code blocks as appropriate.`

const multiImageFormat = `
Note: There are %d screenshots provided. These may represent:
- Multiple parts of a single problem
- A problem and its test cases
- Code and error messages
- Sequential steps in a larger problem

Ensure you consider all images together as a complete context before providing your solution.`

const universalGuidelines = `

UNIVERSAL GUIDELINES:
- Ensure your solution is correct and addresses all aspects of the problem
- Format your response with clear Markdown headings and sections
- Use proper code blocks with language tags for any code
- Be precise and avoid ambiguity in your explanations
- Write clean, efficient code that follows best practices
- Format code with proper indentation and readable style`

var followUpSuffixes = map[domain.Intent]string{
	domain.IntentErrorFix: `Focus on identifying and fixing the specific error or issue mentioned.
Provide a complete solution with corrected code and a detailed explanation of what was causing the problem.
Be precise about what changes need to be made and why they resolve the issue.`,

	domain.IntentExplanation: `Provide a clear, detailed explanation of the concept or aspect the user is asking about.
Use analogies, step-by-step breakdowns, or visual descriptions if helpful.
Make sure your explanation is accessible and tailored to help them genuinely understand the topic.`,

	domain.IntentOptimization: `Analyze the current solution and identify specific opportunities for optimization.
Explain the performance implications of your suggested improvements (time/space complexity).
Provide optimized code with comments explaining each optimization technique.
Compare before and after performance characteristics.`,

	domain.IntentAlternative: `Develop a completely different approach to solving the original problem.
Explain the key differences between this alternative and the previous solution.
Discuss the trade-offs between the approaches (simplicity, performance, readability, etc.).
Provide full implementation of the alternative solution.`,

	domain.IntentGeneral: `Address the user's follow-up question directly and thoroughly.
Provide any additional code, explanations, or resources needed to fully answer their question.
Make sure your response builds on the context of the previous solution while focusing specifically on what they're asking.`,
}
