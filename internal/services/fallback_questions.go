package services

import "osscprep/internal/models"

func fq(id string, d models.Difficulty, topic, text string, opts [4]string, answer int, explanation string) *models.Question {
	return &models.Question{
		ID:                 id,
		QuestionText:       text,
		Options:            opts[:],
		CorrectOptionIndex: answer,
		Explanation:        explanation,
		Topic:              topic,
		Difficulty:         d,
		Language:           models.LanguageEnglish,
	}
}

const (
	fbEasy   = models.DifficultyEasy
	fbMedium = models.DifficultyMedium
)

func defaultFallbackQuestions() map[FallbackCategory][]*models.Question {
	return map[FallbackCategory][]*models.Question{
		CategoryReasoning: {
			fq("fallback_reasoning_01", fbEasy, "Number Series", "Complete the series: 2, 6, 12, 20, 30, ?",
				[4]string{"40", "42", "44", "46"}, 1, "The terms are n(n+1): 1×2, 2×3, 3×4, 4×5, 5×6, so the next is 6×7 = 42."),
			fq("fallback_reasoning_02", fbMedium, "Odd One Out", "Find the odd one out: 2, 5, 10, 17, 26, 37, 50, 64",
				[4]string{"17", "37", "50", "64"}, 3, "Every term is n² + 1. The eighth term should be 65, not 64."),
			fq("fallback_reasoning_03", fbEasy, "Analogy", "Book : Author :: Painting : ?",
				[4]string{"Canvas", "Painter", "Brush", "Gallery"}, 1, "An author creates a book and a painter creates a painting."),
			fq("fallback_reasoning_04", fbEasy, "Coding-Decoding", "If CAT is coded as DBU, how is DOG coded?",
				[4]string{"EPH", "EOH", "DPH", "FPH"}, 0, "Each letter moves one place forward: D→E, O→P, G→H."),
			fq("fallback_reasoning_05", fbMedium, "Blood Relations", "Pointing to a boy, Riya says, \"He is the son of my mother's only son.\" How is the boy related to Riya?",
				[4]string{"Brother", "Nephew", "Cousin", "Uncle"}, 1, "Riya's mother's only son is Riya's brother, and his son is her nephew."),
			fq("fallback_reasoning_06", fbEasy, "Direction Sense", "A man walks 5 km north, turns right and walks 3 km, then turns right again and walks 5 km. Where is he now from the starting point?",
				[4]string{"3 km East", "3 km West", "5 km North", "8 km East"}, 0, "The two 5 km legs cancel out, leaving him 3 km east of the start."),
			fq("fallback_reasoning_07", fbMedium, "Letter Series", "Complete the series: A, C, F, J, O, ?",
				[4]string{"T", "U", "V", "W"}, 1, "The gaps grow by one each time: +2, +3, +4, +5, +6. O is 15, so the next letter is the 21st, U."),
			fq("fallback_reasoning_08", fbEasy, "Odd One Out", "Find the odd one out: Apple, Mango, Potato, Banana",
				[4]string{"Apple", "Mango", "Potato", "Banana"}, 2, "Potato is a vegetable; the others are fruits."),
			fq("fallback_reasoning_09", fbEasy, "Analogy", "3 : 27 :: 4 : ?",
				[4]string{"16", "48", "64", "81"}, 2, "27 is 3 cubed, so the answer is 4 cubed, 64."),
			fq("fallback_reasoning_10", fbEasy, "Ranking", "In a row of 40 students, Ravi is 12th from the left. What is his position from the right?",
				[4]string{"27th", "28th", "29th", "30th"}, 2, "Position from the right = 40 − 12 + 1 = 29."),
			fq("fallback_reasoning_11", fbMedium, "Calendar", "If today is Monday, what day of the week will it be after 61 days?",
				[4]string{"Friday", "Saturday", "Sunday", "Thursday"}, 1, "61 days is 8 weeks and 5 days. Five days after Monday is Saturday."),
			fq("fallback_reasoning_12", fbMedium, "Clock", "What is the angle between the hour and minute hands of a clock at 3:30?",
				[4]string{"60°", "75°", "90°", "105°"}, 1, "Angle = |30×3 − 5.5×30| = |90 − 165| = 75°."),
		},
		CategoryQuantitative: {
			fq("fallback_quant_01", fbEasy, "Percentage", "If 40% of a number is 64, what is 75% of that number?",
				[4]string{"100", "120", "140", "160"}, 1, "40% = 64 gives 100% = 160, and 75% of 160 is 120."),
			fq("fallback_quant_02", fbMedium, "HCF and LCM", "The ratio of two numbers is 3:4 and their HCF is 5. What is their LCM?",
				[4]string{"45", "60", "75", "90"}, 1, "The numbers are 15 and 20, so LCM = (15 × 20) / 5 = 60."),
			fq("fallback_quant_03", fbEasy, "Time Speed Distance", "A speed of 54 km/h is equal to how many metres per second?",
				[4]string{"12", "15", "18", "20"}, 1, "Multiply by 5/18: 54 × 5/18 = 15 m/s."),
			fq("fallback_quant_04", fbEasy, "Simple Interest", "What is the simple interest on ₹5000 at 8% per annum for 3 years?",
				[4]string{"₹1000", "₹1200", "₹1400", "₹1500"}, 1, "SI = 5000 × 8 × 3 / 100 = ₹1200."),
			fq("fallback_quant_05", fbMedium, "Time and Work", "A can finish a job in 10 days and B in 15 days. Working together, how long will they take?",
				[4]string{"5 days", "6 days", "7 days", "8 days"}, 1, "Together they do 1/10 + 1/15 = 1/6 of the job per day, so 6 days."),
			fq("fallback_quant_06", fbEasy, "Average", "What is the average of the first 10 natural numbers?",
				[4]string{"5", "5.5", "6", "10"}, 1, "The sum is 55, and 55 / 10 = 5.5."),
			fq("fallback_quant_07", fbEasy, "Profit and Loss", "An article bought for ₹400 is sold for ₹500. What is the profit percentage?",
				[4]string{"20%", "25%", "30%", "15%"}, 1, "Profit is ₹100 on a cost of ₹400, which is 25%."),
			fq("fallback_quant_08", fbEasy, "Square Roots", "What is the square root of 1764?",
				[4]string{"38", "40", "42", "44"}, 2, "42 × 42 = 1764."),
			fq("fallback_quant_09", fbMedium, "Time Speed Distance", "A train 150 m long passes a pole in 10 seconds. What is its speed in km/h?",
				[4]string{"45", "50", "54", "60"}, 2, "Speed = 150/10 = 15 m/s, and 15 × 18/5 = 54 km/h."),
			fq("fallback_quant_10", fbMedium, "Compound Interest", "What is the compound interest on ₹10,000 at 10% per annum for 2 years, compounded annually?",
				[4]string{"₹2000", "₹2100", "₹2200", "₹2010"}, 1, "Amount = 10000 × 1.1² = ₹12,100, so the interest is ₹2100."),
			fq("fallback_quant_11", fbEasy, "Percentage", "What is 15% of 15% of 400?",
				[4]string{"6", "9", "12", "15"}, 1, "15% of 400 is 60, and 15% of 60 is 9."),
			fq("fallback_quant_12", fbEasy, "Fractions", "What is three-fifths of 250?",
				[4]string{"125", "150", "175", "200"}, 1, "250 × 3/5 = 150."),
		},
		CategoryEnglish: {
			fq("fallback_english_01", fbEasy, "Synonyms", "Choose the synonym of \"ELOQUENT\":",
				[4]string{"Silent", "Articulate", "Confused", "Hesitant"}, 1, "Eloquent means fluent and persuasive in speech, which is closest to articulate."),
			fq("fallback_english_02", fbEasy, "One Word Substitution", "One who speaks many languages is called:",
				[4]string{"Linguist", "Polyglot", "Grammarian", "Orator"}, 1, "A polyglot is a person who knows several languages."),
			fq("fallback_english_03", fbEasy, "Antonyms", "Choose the antonym of \"ANCIENT\":",
				[4]string{"Old", "Modern", "Antique", "Archaic"}, 1, "Ancient means very old; its opposite is modern."),
			fq("fallback_english_04", fbEasy, "Synonyms", "Choose the synonym of \"BENEVOLENT\":",
				[4]string{"Cruel", "Kind", "Selfish", "Angry"}, 1, "Benevolent means well-meaning and kindly."),
			fq("fallback_english_05", fbEasy, "Fill in the Blanks", "She ___ to school every day.",
				[4]string{"go", "goes", "going", "gone"}, 1, "A third person singular subject takes \"goes\" in the simple present."),
			fq("fallback_english_06", fbMedium, "Spelling", "Choose the correctly spelt word:",
				[4]string{"Accomodate", "Acommodate", "Accommodate", "Acomodate"}, 2, "Accommodate has a double c and a double m."),
			fq("fallback_english_07", fbEasy, "One Word Substitution", "A person who does not believe in the existence of God is called:",
				[4]string{"Theist", "Atheist", "Agnostic", "Pagan"}, 1, "An atheist denies that God exists; an agnostic holds that it cannot be known."),
			fq("fallback_english_08", fbEasy, "Antonyms", "Choose the antonym of \"ABUNDANT\":",
				[4]string{"Plentiful", "Scarce", "Ample", "Rich"}, 1, "Abundant means plentiful; scarce means in short supply."),
			fq("fallback_english_09", fbEasy, "Idioms and Phrases", "What does the idiom \"a piece of cake\" mean?",
				[4]string{"A tasty dessert", "Something very easy", "A small portion", "A difficult task"}, 1, "\"A piece of cake\" describes a task that is very easy."),
			fq("fallback_english_10", fbMedium, "Grammar", "What is the plural of \"criterion\"?",
				[4]string{"Criterions", "Criteria", "Criterias", "Criterion"}, 1, "Criterion takes the Greek plural criteria."),
			fq("fallback_english_11", fbEasy, "Prepositions", "He is good ___ mathematics.",
				[4]string{"in", "at", "on", "with"}, 1, "The fixed phrase is \"good at\" a subject or skill."),
			fq("fallback_english_12", fbMedium, "Voice", "Change to active voice: \"The letter was written by Ram.\"",
				[4]string{"Ram writes the letter.", "Ram wrote the letter.", "Ram has written the letter.", "Ram had written the letter."}, 1, "\"Was written\" is simple past passive, so the active form is \"Ram wrote the letter.\""),
		},
		CategoryGeneralKnowledge: {
			fq("fallback_gk_01", fbEasy, "Odisha Geography", "Which river is known as the \"Sorrow of Odisha\"?",
				[4]string{"Mahanadi", "Brahmani", "Baitarani", "Rushikulya"}, 0, "The Mahanadi earned the name through its frequent floods."),
			fq("fallback_gk_02", fbEasy, "Odisha History", "On which date did Odisha become a separate province?",
				[4]string{"1st April 1936", "26th January 1950", "15th August 1947", "1st November 1956"}, 0, "Odisha (then Orissa) became a separate province on 1 April 1936, now celebrated as Utkal Divas."),
			fq("fallback_gk_03", fbMedium, "Odisha Culture - Temples", "Which ruler built the Jagannath Temple at Puri?",
				[4]string{"Anantavarman Chodaganga", "Narasimhadeva I", "Kapilendra Deva", "Mukunda Deva"}, 0, "Anantavarman Chodaganga of the Eastern Ganga dynasty began the temple in the 12th century."),
			fq("fallback_gk_04", fbEasy, "Odisha Geography", "What is the capital of Odisha?",
				[4]string{"Cuttack", "Bhubaneswar", "Puri", "Sambalpur"}, 1, "Bhubaneswar replaced Cuttack as the capital in 1948."),
			fq("fallback_gk_05", fbMedium, "Odisha Culture - Temples", "Who built the Sun Temple at Konark?",
				[4]string{"Anantavarman Chodaganga", "Narasimhadeva I", "Kharavela", "Kapilendra Deva"}, 1, "Narasimhadeva I of the Eastern Ganga dynasty built it in the 13th century."),
			fq("fallback_gk_06", fbEasy, "Odisha Geography", "Chilika Lake is best described as:",
				[4]string{"The largest freshwater lake in India", "The largest brackish water lagoon in India", "The highest lake in India", "An artificial reservoir"}, 1, "Chilika is Asia's largest brackish water lagoon and the largest in India."),
			fq("fallback_gk_07", fbMedium, "Indian Constitution", "Article 21 of the Indian Constitution deals with:",
				[4]string{"Right to equality", "Protection of life and personal liberty", "Freedom of religion", "Right to constitutional remedies"}, 1, "Article 21 guarantees that no person shall be deprived of life or personal liberty except by procedure established by law."),
			fq("fallback_gk_08", fbEasy, "Indian Polity", "Who is known as the chief architect of the Indian Constitution?",
				[4]string{"Jawaharlal Nehru", "B. R. Ambedkar", "Rajendra Prasad", "Sardar Patel"}, 1, "Dr B. R. Ambedkar chaired the Drafting Committee."),
			fq("fallback_gk_09", fbMedium, "Ancient Odisha History", "In which year was the Kalinga War fought?",
				[4]string{"261 BCE", "273 BCE", "232 BCE", "305 BCE"}, 0, "Ashoka's conquest of Kalinga took place around 261 BCE."),
			fq("fallback_gk_10", fbEasy, "Odisha Geography", "The Hirakud Dam is built across which river?",
				[4]string{"Brahmani", "Mahanadi", "Baitarani", "Subarnarekha"}, 1, "Hirakud, near Sambalpur, dams the Mahanadi."),
			fq("fallback_gk_11", fbMedium, "Odisha History", "Who is known as \"Utkal Gourab\"?",
				[4]string{"Gopabandhu Das", "Madhusudan Das", "Fakir Mohan Senapati", "Radhanath Ray"}, 1, "Madhusudan Das is honoured as Utkal Gourab; Gopabandhu Das is Utkalmani."),
			fq("fallback_gk_12", fbEasy, "Physics", "Which is the smallest planet in the solar system?",
				[4]string{"Mars", "Mercury", "Venus", "Pluto"}, 1, "Mercury is the smallest planet since Pluto was reclassified in 2006."),
		},
		CategoryComputer: {
			fq("fallback_computer_01", fbEasy, "Computer Fundamentals", "What does CPU stand for?",
				[4]string{"Central Processing Unit", "Central Program Unit", "Computer Processing Unit", "Central Processor Utility"}, 0, "The CPU is the Central Processing Unit that executes instructions."),
			fq("fallback_computer_02", fbEasy, "Keyboard Shortcuts", "Which shortcut copies the selected text?",
				[4]string{"Ctrl + V", "Ctrl + X", "Ctrl + C", "Ctrl + P"}, 2, "Ctrl + C copies; Ctrl + V pastes and Ctrl + X cuts."),
			fq("fallback_computer_03", fbEasy, "Memory Units", "One kilobyte (KB) is equal to:",
				[4]string{"1000 bytes", "1024 bytes", "512 bytes", "2048 bytes"}, 1, "In binary units 1 KB = 2¹⁰ = 1024 bytes."),
			fq("fallback_computer_04", fbEasy, "Input and Output Devices", "Which of the following is NOT an input device?",
				[4]string{"Keyboard", "Mouse", "Monitor", "Scanner"}, 2, "A monitor displays output; the rest feed data into the computer."),
			fq("fallback_computer_05", fbEasy, "Memory", "RAM is an example of:",
				[4]string{"Volatile memory", "Permanent storage", "Read-only memory", "Optical storage"}, 0, "RAM loses its contents when power is switched off."),
			fq("fallback_computer_06", fbEasy, "Operating Systems", "Which of the following is an operating system?",
				[4]string{"MS Excel", "Linux", "Photoshop", "Google Chrome"}, 1, "Linux is an operating system; the others are applications."),
			fq("fallback_computer_07", fbEasy, "Internet", "What does HTML stand for?",
				[4]string{"HyperText Markup Language", "High Transfer Machine Language", "HyperText Machine Link", "Home Tool Markup Language"}, 0, "HTML is the HyperText Markup Language used for web pages."),
			fq("fallback_computer_08", fbEasy, "Keyboard Shortcuts", "Which shortcut undoes the last action?",
				[4]string{"Ctrl + Y", "Ctrl + Z", "Ctrl + U", "Ctrl + X"}, 1, "Ctrl + Z undoes; Ctrl + Y usually redoes."),
			fq("fallback_computer_09", fbMedium, "Number Systems", "What is the binary representation of decimal 10?",
				[4]string{"1001", "1010", "1100", "1110"}, 1, "10 = 8 + 2, which is 1010 in binary."),
			fq("fallback_computer_10", fbEasy, "Internet", "What does URL stand for?",
				[4]string{"Uniform Resource Locator", "Universal Routing Link", "Uniform Remote Login", "Unified Resource Link"}, 0, "A URL is a Uniform Resource Locator, the address of a web resource."),
			fq("fallback_computer_11", fbEasy, "MS Office", "Which of these is a spreadsheet program?",
				[4]string{"MS Word", "MS Excel", "MS PowerPoint", "MS Paint"}, 1, "Excel organises data in rows and columns of cells."),
			fq("fallback_computer_12", fbMedium, "Networking", "Which protocol is used to send e-mail?",
				[4]string{"HTTP", "FTP", "SMTP", "SNMP"}, 2, "SMTP, the Simple Mail Transfer Protocol, delivers outgoing mail."),
		},
	}
}
