package fixtures

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/limaJavier/timetabler/pkg/model"
)

var departments = []string{"MT", "PH", "CS", "BIO"}

// Synthetic builds a feasible instance with the given number of classes. Every class takes
// five courses of two weekly sessions; teachers carry two subjects and rooms outnumber classes,
// so the instance always admits a complete timetable on the default grid.
func Synthetic(ctx context.Context, classes int, seed int64) (*model.Dataset, error) {
	if classes <= 0 {
		return nil, fmt.Errorf("number of classes must be positive: %d", classes)
	}
	random := rand.New(rand.NewSource(seed))
	grid, err := model.NewGrid(model.DefaultGridConfig())
	if err != nil {
		return nil, err
	}

	subjects := make([]string, 0, 10)
	for i := range 10 {
		subjects = append(subjects, fmt.Sprintf("Subject %02d", i+1))
	}

	teachers := make([]model.Teacher, 0, classes*3)
	for i := range classes * 3 {
		first := random.Intn(len(subjects))
		teachers = append(teachers, model.Teacher{
			Id:         fmt.Sprintf("T%03d", i+1),
			Name:       fmt.Sprintf("Teacher %03d", i+1),
			Department: departments[i%len(departments)],
			Subjects:   []string{subjects[first], subjects[(first+1)%len(subjects)]},
			Preferences: model.Preferences{
				NoBackToBack:      random.Intn(3) == 0,
				MaxSessionsPerDay: 2 + random.Intn(3),
			},
		})
	}

	rooms := make([]model.Room, 0, classes+2)
	for i := range classes + 1 {
		rooms = append(rooms, model.Room{Id: fmt.Sprintf("R%03d", i+1), Name: fmt.Sprintf("Room %03d", i+1), Capacity: 40, Type: model.Lecture})
	}
	rooms = append(rooms, model.Room{Id: "LAB1", Name: "Lab 1", Capacity: 30, Type: model.Lab})

	courses := make([]model.Course, 0, classes*5)
	for class := range classes {
		for i := range 5 {
			teacher := teachers[(class*5+i)%len(teachers)]
			roomType := model.Lecture
			if i == 4 && class%3 == 0 {
				roomType = model.Lab
			}
			courses = append(courses, model.Course{
				Id:         fmt.Sprintf("C%03d-%d", class+1, i+1),
				Name:       fmt.Sprintf("%s for class %d", teacher.Subjects[0], class+1),
				Department: teacher.Department,
				Subject:    teacher.Subjects[0],
				Teacher:    teacher.Id,
				Class:      fmt.Sprintf("K%03d", class+1),
				Enrollment: 15 + random.Intn(15),
				Sessions:   2,
				RoomType:   roomType,
			})
		}
	}

	return model.NewDataset(ctx, grid, teachers, rooms, courses)
}
