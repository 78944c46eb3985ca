package http

// studentProfile groups the raw input into the sections the frontend shows
// for each known dataset.
func studentProfile(dataset string, raw map[string]interface{}) map[string]interface{} {
	profile := map[string]interface{}{"raw": raw}
	pick := func(fields map[string]string) map[string]interface{} {
		out := make(map[string]interface{}, len(fields))
		for key, attr := range fields {
			out[key] = raw[attr]
		}
		return out
	}

	switch dataset {
	case "see":
		profile["academicPerformance"] = pick(map[string]string{
			"seeGpa":        "SEE_GPA",
			"seeScienceGpa": "SEE_Science_GPA",
			"seeMathGpa":    "SEE_Math_GPA",
		})
		profile["preferences"] = pick(map[string]string{
			"fee":            "Fee",
			"hostel":         "Hostel",
			"transportation": "Transportation",
			"eca":            "ECA",
			"scholarship":    "Scholarship",
		})
		profile["facilities"] = pick(map[string]string{
			"scienceLabs":    "Science_Labs",
			"infrastructure": "Infrastructure",
		})
		profile["location"] = raw["College_Location"]
	case "plusTwo":
		profile["academic"] = pick(map[string]string{
			"overallGpa": "Overall_GPA",
			"faculty":    "Faculty",
			"program":    "Program",
		})
		profile["preferences"] = pick(map[string]string{
			"fee":                      "Fee",
			"scholarship":              "Scholarship",
			"labSpecialization":        "Lab_Specialization",
			"admissionCompetitiveness": "Admission_Competitiveness",
		})
	case "bachelor":
		profile["academic"] = pick(map[string]string{
			"currentStatus": "Current_Status",
			"academicYear":  "Academic_Year",
			"stream":        "Academic_Stream",
		})
		profile["performance"] = pick(map[string]string{
			"grade":         "Performance",
			"projectDomain": "Project_Domain",
			"internship":    "Internship",
		})
		profile["preferences"] = pick(map[string]string{
			"learningMethod": "Learning_Method",
			"careerGoal":     "Career_Goal",
			"availability":   "Availability",
		})
	}
	return profile
}
