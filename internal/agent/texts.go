package agent

import (
	"strconv"

	"github.com/p-n-ai/coursecraft/internal/chat"
	"github.com/p-n-ai/coursecraft/internal/course"
)

const (
	msgWelcome = `Hi %s! 👋

I'm CourseCraft. Tell me a skill and I'll build you a personal 7-day course, one lesson a day.

What skill would you like to learn?`

	msgAskSkill       = "What skill would you like to learn?"
	msgAskGoal        = "What's your goal? For example: \"play my first song\" or \"pass an interview\"."
	msgAskExperience  = "What's your current level? Beginner, some experience, advanced?"
	msgAskPreferences = "Any preferences for the course? Format, examples, time per day. Or skip this step."
	msgAskPlanEdit    = "What would you like to change in the plan?"
	msgAskQuestion    = "What's your question about this lesson?"
	msgAskChange      = "What would you like to change in this lesson?"
	msgAskFeedback    = "Write your feedback in one message. It goes straight to the developers."

	msgUseButtons         = "Please use the buttons under the plan."
	msgCourseReady        = "🎉 Your course on %s is ready! Here is your first lesson."
	msgLessonUpdated      = "✏️ Lesson updated."
	msgCourseCancelled    = "Course cancelled. Your completed lessons are saved. Start a new one any time."
	msgCourseFinished     = "🏆 Congratulations, you completed the %s course! Progress: %d%%."
	msgPickNext           = "What would you like to learn next?"
	msgAllSuggestionsDone = "You've already completed all the suggested courses. What skill would you like to learn next?"
	msgSuggestionChosen   = "Great choice: %s! What's your goal?"
	msgSuggestionsExpired = "These suggestions are no longer available. Start a new course with /start."
	msgReminder           = "⏰ Ready for the next lesson?"

	msgNoActiveCourse   = "You don't have an active course. Start one with /start."
	msgGenerationFailed = "😔 Sorry, I couldn't generate that right now. Please try again."
	msgSimplifyFailed   = "😔 Sorry, I couldn't simplify this lesson right now. Try again in a moment or ask a specific question."
	msgGenericError     = "😔 Something went wrong. Please try again."
	msgStaleButton      = "That option isn't available right now."
	msgUnknownInput     = "I don't know what to do with that yet. Try /help."
	msgUnknownCommand   = "Unknown command: %s\nUse /help to see what I can do."

	msgFeedbackThanks = "Thank you for your feedback! 🙏"
	msgDonate         = "CourseCraft is free. If it helps you, you can support its development here:"
	msgDonateThanks   = "Thank you for thinking of supporting CourseCraft! 💛"

	msgHelp = `<b>How CourseCraft works</b>

/start – create a new 7-day course
/help – this message
/feedback – send feedback to the developers
/donate – support the project

Under each lesson:
➡️ Next lesson – move to the next day
🤔 Simplify – get a simpler explanation
❓ Ask – ask about the lesson
✏️ Change – rewrite today's lesson
❌ Cancel – stop the course (completed lessons are kept)`

	msgUsage = `Here's how to use CourseCraft:
• Use the buttons under each lesson to move on, simplify, ask or change it.
• To stop a course, press ❌ Cancel under the lesson.
• To start a different course, send /start.
• /help shows all commands.`
)

func startButton() chat.Button {
	return chat.Button{Text: "🚀 Start a course", Action: actionStartCourse}
}

func returnButton() chat.Button {
	return chat.Button{Text: "📖 Back to the lesson", Action: actionReturnToLesson}
}

func skipPreferencesButton() chat.Button {
	return chat.Button{Text: "⏭ Skip", Action: actionSkipPreferences}
}

func nextButton(day int) chat.Button {
	return chat.Button{Text: "➡️ Next lesson", Action: actionNextLesson + ":" + strconv.Itoa(day)}
}

func lessonButtons(rec course.Record) [][]chat.Button {
	advance := chat.Button{Text: "🏁 Finish the course", Action: actionFinishCourse}
	if rec.CurrentDay < course.LastDay {
		advance = nextButton(rec.CurrentDay)
	}
	return [][]chat.Button{
		chat.Row(advance),
		chat.Row(
			chat.Button{Text: "🤔 Simplify", Action: actionSimplifyLesson},
			chat.Button{Text: "❓ Ask", Action: actionCustomQuestion},
		),
		chat.Row(
			chat.Button{Text: "✏️ Change", Action: actionChangeLesson},
			chat.Button{Text: "❌ Cancel", Action: actionCancelCourse},
		),
	}
}

func displayName(msg chat.InboundMessage) string {
	switch {
	case msg.FirstName != "":
		return msg.FirstName
	case msg.Username != "":
		return msg.Username
	default:
		return "there"
	}
}
