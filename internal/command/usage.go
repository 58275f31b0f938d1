package command

// Usage is returned for help requests and appended to "Invalid input." replies.
const Usage = `A bot that schedules reminders for users.

To store a reminder, mention or send a message to the bot in the following format:

` + "`add in <number> <time unit> <content_of_reminder>`" + `
ie. ` + "`add in 1 day complete timesheets`" + `
(Available time units: minutes, hours, days, weeks)

or

` + "`add at <date and time> <content_of_reminder>`" + `
ie. ` + "`add at 13/05/2021 16:00 complete timesheets`" + `
(Date and time must be in the format: DD/MM/YYYY HH:MM)

These reminders will be sent to your private messages.

To add a repeat reminder:
` + "`add in <number> <time unit> repeat every <number> <time unit> <content_of_reminder>`" + `
ie. ` + "`add in 1 day repeat every 1 week complete timesheets`" + `

To add a reminder to a stream/topic:
` + "`add stream: <stream name> topic: <topic name> in <number> <time unit> (optional: repeat every <number> <time unit>) <content_of_reminder>`" + `
ie. ` + "`add stream: Timesheets topic: Please remember your timesheets at 13/05/2021 16:00 repeat every 7 days complete timesheets`" + `

To remove a reminder:
` + "`remove <reminder id>`" + `

To list reminders:
` + "`list`" + `

To repeat an existing reminder:
` + "`repeat <reminder id> every <number> <time unit>`" + `
ie. ` + "`repeat 23 every 2 weeks`" + `

To send a reminder to other people as well:
` + "`multiremind <reminder id> @**Name** @**Other Name**`" + `
`
