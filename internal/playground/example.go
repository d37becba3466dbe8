package playground

// ExampleSource is shown when the page address carries no recognized
// fragment. It declares a small host API and uses it, which is the typical
// shape of a TypeScriptToLua project.
const ExampleSource = `// Declare exposed API
type Vector = [number, number, number];

declare function findUnitsInRadius(this: void, center: Vector, radius: number): Unit[];
declare interface Unit {
    isFriend(other: Unit): boolean;
    givePoints(pointsAmount: number): void;
}


// Use declared API in code
function onAbilityCast(this: void, caster: Unit, targetLocation: Vector) {
    const units = findUnitsInRadius(targetLocation, 500);
    const friends = units.filter(unit => caster.isFriend(unit));

    for (const friend of friends) {
        friend.givePoints(50);
    }
}
`

// ExampleLua is the compiler output for ExampleSource with the default
// options. It is rendered into the page so the output pane is populated
// before the first compile round trip.
const ExampleLua = `--[[ Generated with https://github.com/TypeScriptToLua/TypeScriptToLua ]]
-- Lua Library inline imports
local function __TS__ArrayFilter(self, callbackfn, thisArg)
    local result = {}
    local len = 0
    for i = 1, #self do
        if callbackfn(thisArg, self[i], i - 1, self) then
            len = len + 1
            result[len] = self[i]
        end
    end
    return result
end
-- End of Lua Library inline imports
function onAbilityCast(caster, targetLocation)
    local units = findUnitsInRadius(targetLocation, 500)
    local friends = __TS__ArrayFilter(
        units,
        function(____, unit) return caster:isFriend(unit) end
    )
    for ____, friend in ipairs(friends) do
        friend:givePoints(50)
    end
end
`
